package main

import (
	"reflect"
	"testing"
)

func TestSplitMigrateArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantRest []string
		wantPath string
	}{
		{
			name:     "no db-path option",
			args:     []string{"up"},
			wantRest: []string{"up"},
			wantPath: "plate.db",
		},
		{
			name:     "db-path after action",
			args:     []string{"up", "--db-path", "/var/lib/plate/plate.db"},
			wantRest: []string{"up"},
			wantPath: "/var/lib/plate/plate.db",
		},
		{
			name:     "db-path before action",
			args:     []string{"--db-path", "test.db", "status"},
			wantRest: []string{"status"},
			wantPath: "test.db",
		},
		{
			name:     "equals form",
			args:     []string{"version", "2", "--db-path=test.db"},
			wantRest: []string{"version", "2"},
			wantPath: "test.db",
		},
		{
			name:     "single dash form",
			args:     []string{"-db-path", "test.db", "down"},
			wantRest: []string{"down"},
			wantPath: "test.db",
		},
		{
			name:     "empty args",
			args:     nil,
			wantRest: nil,
			wantPath: "plate.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rest, path := splitMigrateArgs(tt.args)
			if !reflect.DeepEqual(rest, tt.wantRest) {
				t.Errorf("rest = %v, want %v", rest, tt.wantRest)
			}
			if path != tt.wantPath {
				t.Errorf("dbPath = %q, want %q", path, tt.wantPath)
			}
		})
	}
}

func TestBuildSource_Synthetic(t *testing.T) {
	src, err := buildSource("synthetic:25")
	if err != nil {
		t.Fatalf("buildSource returned error: %v", err)
	}
	defer src.Close()

	if src == nil {
		t.Fatal("buildSource returned nil source")
	}
}

func TestBuildSource_SyntheticUnlimited(t *testing.T) {
	src, err := buildSource("synthetic")
	if err != nil {
		t.Fatalf("buildSource returned error: %v", err)
	}
	defer src.Close()
}

func TestBuildSource_SyntheticBadCount(t *testing.T) {
	if _, err := buildSource("synthetic:lots"); err == nil {
		t.Error("Expected error for non-numeric synthetic count")
	}
}

func TestBuildSource_MissingDirectory(t *testing.T) {
	if _, err := buildSource("/nonexistent/frames"); err == nil {
		t.Error("Expected error for missing frames directory")
	}
}
