package e2e

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/cucumber/godog"
)

// binaryPath holds the path to the compiled binary (set once in TestMain)
var binaryPath string

// testContext holds state for a single scenario
type testContext struct {
	tmpDir   string
	exitCode int
	output   string
}

// buildBinary compiles the scantriage binary once
func buildBinary() (string, error) {
	tmpFile, err := os.CreateTemp("", "scantriage-test-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpFile.Close()

	// Get the directory of this test file to find the project root
	_, thisFile, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")

	cmd := exec.Command("go", "build", "-o", tmpFile.Name(), "./cmd/scantriage")
	cmd.Dir = projectRoot
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("build failed: %w\n%s", err, stderr.String())
	}

	return tmpFile.Name(), nil
}

// TestMain compiles the binary once before running all tests
func TestMain(m *testing.M) {
	var err error
	binaryPath, err = buildBinary()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build binary: %v\n", err)
		os.Exit(1)
	}
	defer os.Remove(binaryPath)

	code := m.Run()
	os.Exit(code)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func InitializeScenario(sc *godog.ScenarioContext) {
	tc := &testContext{}

	// Setup: create temp directory before each scenario
	sc.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tmpDir, err := os.MkdirTemp("", "scantriage-e2e-*")
		if err != nil {
			return ctx, err
		}
		tc.tmpDir = tmpDir
		return ctx, nil
	})

	// Teardown: cleanup temp directory after each scenario
	sc.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if tc.tmpDir != "" {
			os.RemoveAll(tc.tmpDir)
		}
		return ctx, nil
	})

	// Step definitions
	sc.Step(`^a (\d+)x(\d+) gradient PNG image "([^"]*)"$`, tc.aGradientPNGImage)
	sc.Step(`^a corrupt image file "([^"]*)"$`, tc.aCorruptImageFile)
	sc.Step(`^I run scantriage with "([^"]*)"$`, tc.iRunScantriageWith)
	sc.Step(`^the exit code should be (\d+)$`, tc.theExitCodeShouldBe)
	sc.Step(`^the report should contain "([^"]*)"$`, tc.theReportShouldContain)
	sc.Step(`^the processed image "([^"]*)" should be (\d+)x(\d+)$`, tc.theProcessedImageShouldBe)
}

func (tc *testContext) aGradientPNGImage(width, height int, name string) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(x * 255 / (width - 1))
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}

	f, err := os.Create(filepath.Join(tc.tmpDir, name))
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	defer f.Close()

	return png.Encode(f, img)
}

func (tc *testContext) aCorruptImageFile(name string) error {
	return os.WriteFile(filepath.Join(tc.tmpDir, name), []byte("not an image at all"), 0o644)
}

func (tc *testContext) iRunScantriageWith(args string) error {
	cmd := exec.Command(binaryPath, strings.Fields(args)...)
	cmd.Dir = tc.tmpDir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	tc.output = output.String()

	if exitErr, ok := err.(*exec.ExitError); ok {
		tc.exitCode = exitErr.ExitCode()
	} else if err != nil {
		return fmt.Errorf("failed to run command: %w", err)
	} else {
		tc.exitCode = 0
	}

	return nil
}

func (tc *testContext) theExitCodeShouldBe(expected int) error {
	if tc.exitCode != expected {
		return fmt.Errorf("expected exit code %d, got %d\nOutput:\n%s", expected, tc.exitCode, tc.output)
	}
	return nil
}

func (tc *testContext) theReportShouldContain(expected string) error {
	if !strings.Contains(tc.output, expected) {
		return fmt.Errorf("report does not contain %q\nOutput:\n%s", expected, tc.output)
	}
	return nil
}

func (tc *testContext) theProcessedImageShouldBe(name string, width, height int) error {
	f, err := os.Open(filepath.Join(tc.tmpDir, name))
	if err != nil {
		return fmt.Errorf("open processed image: %w", err)
	}
	defer f.Close()

	cfg, err := png.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("decode processed image: %w", err)
	}
	if cfg.Width != width || cfg.Height != height {
		return fmt.Errorf("processed image is %dx%d, want %dx%d", cfg.Width, cfg.Height, width, height)
	}
	return nil
}
