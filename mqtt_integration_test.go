package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func buildBinary(t *testing.T, dir string) string {
	t.Helper()
	binaryPath := filepath.Join(dir, "tudoconflate-test")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, ".")
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, output)
	}
	return binaryPath
}

// TestMQTTServiceStartup runs the service binary against a local broker.
func TestMQTTServiceStartup(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}

	tmpDir := t.TempDir()
	configYAML := `mqtt:
  broker: "tcp://localhost:1883"
  publishPrefix: "conflate-test"
  clientId: "tudoconflate-test"
reference:
  topic: "test/datasets/reference"
subject:
  topic: "test/datasets/subject"
`
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}
	binaryPath := buildBinary(t, tmpDir)

	tests := []struct {
		name           string
		args           []string
		expectInOutput []string
		expectFailure  bool
		timeout        time.Duration
	}{
		{
			name: "successful startup with config",
			args: []string{"--mqtt", "--config=" + configPath},
			expectInOutput: []string{
				"Starting tudoconflate service",
				"Loaded config from",
				"Service Running",
				"test/datasets/reference (reference)",
				"test/datasets/subject (subject)",
				"conflate-test/matches",
				"Press Ctrl+C to stop",
			},
			timeout: 5 * time.Second,
		},
		{
			name:           "missing config file",
			args:           []string{"--mqtt", "--config=nonexistent.yaml"},
			expectInOutput: []string{"config file not found"},
			expectFailure:  true,
			timeout:        2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), tt.timeout)
			defer cancel()

			cmd := exec.CommandContext(ctx, binaryPath, tt.args...)
			output, err := cmd.CombinedOutput()
			outputStr := string(output)

			for _, expected := range tt.expectInOutput {
				if !strings.Contains(outputStr, expected) {
					t.Errorf("Expected output to contain '%s'.\nFull output:\n%s", expected, outputStr)
				}
			}
			if tt.expectFailure && err == nil {
				t.Error("Expected command to fail, but it succeeded")
			}
		})
	}
}

// TestMQTTServiceSignalHandling checks that SIGINT shuts the service down.
func TestMQTTServiceSignalHandling(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}

	tmpDir := t.TempDir()
	configYAML := `mqtt:
  broker: "tcp://localhost:1883"
subject:
  topic: "test/datasets/subject"
`
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to create config: %v", err)
	}
	binaryPath := buildBinary(t, tmpDir)

	cmd := exec.Command(binaryPath, "--mqtt", "--config="+configPath)
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start service: %v", err)
	}
	time.Sleep(2 * time.Second)

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Logf("Failed to send SIGINT (process may have already exited): %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Error("Service did not shut down within timeout")
		_ = cmd.Process.Kill()
	}
}
