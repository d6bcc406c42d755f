package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestSetVersion(t *testing.T) {
	SetVersion("1.0.0", "abc123", "2024-01-01")
	defer SetVersion("dev", "", "")

	if version != "1.0.0" {
		t.Errorf("version = %q, want %q", version, "1.0.0")
	}
	if commit != "abc123" {
		t.Errorf("commit = %q, want %q", commit, "abc123")
	}
	if date != "2024-01-01" {
		t.Errorf("date = %q, want %q", date, "2024-01-01")
	}

	var out bytes.Buffer
	root := NewRootCmd(&out, &out)
	root.SetArgs([]string{"--version"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("--version: %v", err)
	}
	if !strings.Contains(out.String(), "dcmstack 1.0.0") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestRootCommands(t *testing.T) {
	root := NewRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	want := []string{"config", "info", "stack", "synth"}
	var got []string
	for _, c := range root.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		found := false
		for _, g := range got {
			if g == name {
				found = true
			}
		}
		if !found {
			t.Errorf("missing command %q in %v", name, got)
		}
	}
}

func TestLoggerFromContext(t *testing.T) {
	if loggerFromContext(context.Background()) != log.Default() {
		t.Error("empty context should give the default logger")
	}
	var buf bytes.Buffer
	l := newLogger(&buf, log.DebugLevel)
	if loggerFromContext(withLogger(context.Background(), l)) != l {
		t.Error("attached logger not returned")
	}
	newProgress(l).done("Loaded 3 slices")
	if !strings.Contains(buf.String(), "Loaded 3 slices (") {
		t.Errorf("progress line = %q", buf.String())
	}
}

func TestParseAbs(t *testing.T) {
	tests := []struct {
		name   string
		vals   []string
		asText bool
		want   []any
	}{
		{"numbers", []string{"20", " 40.5"}, false, []any{20.0, 40.5}},
		{"mixed", []string{"20", "FLAIR"}, false, []any{20.0, "FLAIR"}},
		{"text", []string{"20", "40"}, true, []any{"20", "40"}},
		{"empty", nil, false, []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAbs(tt.vals, tt.asText)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseAbs(%v) = %#v, want %#v", tt.vals, got, tt.want)
			}
		})
	}
}

func TestFormatShape(t *testing.T) {
	if got := formatShape([]int{24, 32, 3, 2}); got != "24x32x3x2" {
		t.Errorf("formatShape = %q", got)
	}
	if got := formatShape(nil); got != "" {
		t.Errorf("formatShape(nil) = %q", got)
	}
}

func TestResolveConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "dcmstack.yaml")
	yamlText := "stack:\n  time_order:\n    key: AcquisitionTime\n  workers: 2\noutput:\n  voxel_order: RAS\n  embed_meta: true\n"
	if err := os.WriteFile(cfgPath, []byte(yamlText), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		args      []string
		timeKey   string
		timeAbs   int
		order     string
		embedMeta bool
		workers   int
		wantErr   string
	}{
		{
			name:  "defaults",
			args:  []string{"-o", "x.nii"},
			order: "LAS",
		},
		{
			name:      "file values",
			args:      []string{"-o", "x.nii", "--config", cfgPath},
			timeKey:   "AcquisitionTime",
			order:     "RAS",
			embedMeta: true,
			workers:   2,
		},
		{
			name:      "flags override file",
			args:      []string{"-o", "x.nii", "--config", cfgPath, "--time-key", "EchoTime", "--time-abs", "20,40", "--voxel-order", "LPS", "--embed-meta=false", "--workers", "4"},
			timeKey:   "EchoTime",
			timeAbs:   2,
			order:     "LPS",
			embedMeta: false,
			workers:   4,
		},
		{
			name:    "abs without key",
			args:    []string{"-o", "x.nii", "--time-abs", "20"},
			wantErr: "--time-abs requires --time-key",
		},
		{
			name:    "missing config file",
			args:    []string{"-o", "x.nii", "--config", filepath.Join(t.TempDir(), "absent.yaml")},
			wantErr: "config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newStackCmd()
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags: %v", err)
			}
			var opts stackOptions
			opts.configPath, _ = cmd.Flags().GetString("config")
			opts.timeKey, _ = cmd.Flags().GetString("time-key")
			opts.timeAbs, _ = cmd.Flags().GetStringSlice("time-abs")
			opts.workers, _ = cmd.Flags().GetInt("workers")
			opts.voxelOrder, _ = cmd.Flags().GetString("voxel-order")
			opts.embedMeta, _ = cmd.Flags().GetBool("embed-meta")

			cfg, err := resolveConfig(cmd, &opts.stackFlags)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want it to mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveConfig: %v", err)
			}
			applyOutputFlags(cmd, cfg, &opts)

			gotKey := ""
			gotAbs := 0
			if cfg.Stack.TimeOrder != nil {
				gotKey = cfg.Stack.TimeOrder.Key
				gotAbs = len(cfg.Stack.TimeOrder.Abs)
			}
			if gotKey != tt.timeKey || gotAbs != tt.timeAbs {
				t.Errorf("time order = %q with %d values, want %q with %d", gotKey, gotAbs, tt.timeKey, tt.timeAbs)
			}
			if cfg.Output.VoxelOrder != tt.order {
				t.Errorf("VoxelOrder = %q, want %q", cfg.Output.VoxelOrder, tt.order)
			}
			if cfg.Output.EmbedMeta != tt.embedMeta {
				t.Errorf("EmbedMeta = %v, want %v", cfg.Output.EmbedMeta, tt.embedMeta)
			}
			if cfg.Stack.Workers != tt.workers {
				t.Errorf("Workers = %d, want %d", cfg.Stack.Workers, tt.workers)
			}
		})
	}
}

func TestSplitArgs(t *testing.T) {
	got := splitArgs("stack '/tmp/a b' -o  out.nii")
	want := []string{"stack", "/tmp/a b", "-o", "out.nii"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitArgs = %q, want %q", got, want)
	}
}
