package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

type validated struct {
	Port int `yaml:"port"`
}

func (v *validated) Validate() error {
	if v.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeFile(t, "name: override\n")
	s := sample{Name: "default", Port: 8080}
	if err := Load(path, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "override" {
		t.Errorf("name = %q", s.Name)
	}
	if s.Port != 8080 {
		t.Errorf("port = %d, want default kept", s.Port)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("CONFIG_TEST_NAME", "from-env")
	path := writeFile(t, "name: ${CONFIG_TEST_NAME}\n")
	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "from-env" {
		t.Errorf("name = %q", s.Name)
	}
}

func TestLoadRunsValidation(t *testing.T) {
	path := writeFile(t, "port: -1\n")
	var v validated
	if err := Load(path, &v); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	var s sample
	if err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &s); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	s := sample{Name: "default"}
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &s); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if s.Name != "default" {
		t.Errorf("name = %q, want defaults untouched", s.Name)
	}

	// Validation still runs against the defaults.
	var v validated
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &v); err == nil {
		t.Fatal("expected validation error on invalid defaults")
	}
}
