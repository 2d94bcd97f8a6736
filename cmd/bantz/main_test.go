package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bantz.yaml")
	body := fmt.Sprintf("reminders_db: %s\ngraph_db: %s\n",
		filepath.Join(dir, "reminders.db"), filepath.Join(dir, "graph.db"))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := buildRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRemindersAddAndList(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCommand(t, "reminders", "add", "su iç",
		"--at", "2026-02-12T09:00:00Z", "--every", "daily",
		"--config", configPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "Reminder added:") {
		t.Errorf("add output = %q", out)
	}

	out, err = runCommand(t, "reminders", "list", "--config", configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "su iç") || !strings.Contains(out, "every daily") {
		t.Errorf("list output = %q", out)
	}
}

func TestRemindersAddRejectsBadTime(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := runCommand(t, "reminders", "add", "su iç",
		"--at", "yarın sabah", "--config", configPath)
	if err == nil {
		t.Fatal("expected error")
	}
	if exitCode(err) != 1 {
		t.Errorf("exit code = %d, want 1", exitCode(err))
	}
}

func TestRemindersAddRejectsBadInterval(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := runCommand(t, "reminders", "add", "su iç",
		"--at", "2026-02-12T09:00:00Z", "--every", "her dolunayda",
		"--config", configPath)
	if err == nil {
		t.Fatal("expected error")
	}
	if exitCode(err) != 1 {
		t.Errorf("exit code = %d, want 1", exitCode(err))
	}
}

func TestRemindersDeleteMissingIsRuntimeError(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := runCommand(t, "reminders", "delete", "nope", "--config", configPath)
	if err == nil {
		t.Fatal("expected error")
	}
	if exitCode(err) != 2 {
		t.Errorf("exit code = %d, want 2", exitCode(err))
	}
}

func TestGraphStatsOnEmptyDatabase(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCommand(t, "graph", "stats", "--config", configPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "Entities: 0") {
		t.Errorf("stats output = %q", out)
	}
}

func TestGraphDecayValidatesFactor(t *testing.T) {
	configPath := writeTestConfig(t)

	_, err := runCommand(t, "graph", "decay", "--factor", "1.5", "--config", configPath)
	if err == nil {
		t.Fatal("expected error")
	}
	if exitCode(err) != 1 {
		t.Errorf("exit code = %d, want 1", exitCode(err))
	}
}

func TestMissingArgumentIsUsageError(t *testing.T) {
	_, err := runCommand(t, "graph", "search")
	if err == nil {
		t.Fatal("expected error")
	}
	if exitCode(err) != 1 {
		t.Errorf("exit code = %d, want 1", exitCode(err))
	}
}

func TestUnknownCommandIsUsageError(t *testing.T) {
	_, err := runCommand(t, "bogus")
	if err == nil {
		t.Fatal("expected error")
	}
	if exitCode(err) != 1 {
		t.Errorf("exit code = %d, want 1", exitCode(err))
	}
}
