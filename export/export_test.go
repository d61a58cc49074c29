package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/command"
	"github.com/bitrise-io/go-utils/v2/fileutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportOutput(t *testing.T) {
	factory := fakeCommandFactory{}
	exporter := Exporter{cmdFactory: &factory, fileManager: fileutil.NewFileManager()}

	err := exporter.ExportOutput("DEPLOY_ARTIFACT_URL", "https://example.com/artifact.zip")

	require.NoError(t, err)
	require.Len(t, factory.commands, 1)
	assert.Equal(t, "envman", factory.commands[0].name)
	assert.Equal(t, []string{"add", "--key", "DEPLOY_ARTIFACT_URL", "--value", "https://example.com/artifact.zip"}, factory.commands[0].args)
}

func TestExportOutputNoExpand(t *testing.T) {
	factory := fakeCommandFactory{}
	exporter := Exporter{cmdFactory: &factory, fileManager: fileutil.NewFileManager()}

	err := exporter.ExportOutputNoExpand("RELEASE_NOTES", "contains $DOLLAR signs")

	require.NoError(t, err)
	require.Len(t, factory.commands, 1)
	assert.Equal(t, []string{"add", "--key", "RELEASE_NOTES", "--value", "contains $DOLLAR signs", "--no-expand"}, factory.commands[0].args)
}

func TestExportSecretOutput(t *testing.T) {
	factory := fakeCommandFactory{}
	exporter := Exporter{cmdFactory: &factory, fileManager: fileutil.NewFileManager()}

	err := exporter.ExportSecretOutput("DEPLOY_API_CLIENT_SECRET", "s3cr3t")

	require.NoError(t, err)
	require.Len(t, factory.commands, 1)
	assert.Equal(t, []string{"add", "--key", "DEPLOY_API_CLIENT_SECRET", "--value", "s3cr3t", "--sensitive"}, factory.commands[0].args)
}

func TestExportOutputFile(t *testing.T) {
	factory := fakeCommandFactory{}
	exporter := Exporter{cmdFactory: &factory, fileManager: fileutil.NewFileManager()}

	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "source.zip")
	destination := filepath.Join(tmpDir, "destination.zip")
	require.NoError(t, os.WriteFile(source, []byte("artifact bytes"), 0600))

	err := exporter.ExportOutputFile("DEPLOYED_ARTIFACT_PATH", source, destination)

	require.NoError(t, err)
	content, err := os.ReadFile(destination)
	require.NoError(t, err)
	assert.Equal(t, "artifact bytes", string(content))
	require.Len(t, factory.commands, 1)
	assert.Equal(t, []string{"add", "--key", "DEPLOYED_ARTIFACT_PATH", "--value", destination}, factory.commands[0].args)
}

func TestExportOutputDir(t *testing.T) {
	factory := fakeCommandFactory{}
	exporter := Exporter{cmdFactory: &factory, fileManager: fileutil.NewFileManager()}

	tmpDir := t.TempDir()
	sourceDir := filepath.Join(tmpDir, "source")
	destinationDir := filepath.Join(tmpDir, "destination")
	require.NoError(t, os.MkdirAll(filepath.Join(sourceDir, "nested"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, "nested", "app.pkg"), []byte("pkg"), 0600))

	err := exporter.ExportOutputDir(sourceDir, destinationDir, "DEPLOYED_ARTIFACT_DIR")

	require.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(destinationDir, "nested", "app.pkg"))
	require.NoError(t, err)
	assert.Equal(t, "pkg", string(content))
	require.Len(t, factory.commands, 1)
	assert.Equal(t, []string{"add", "--key", "DEPLOYED_ARTIFACT_DIR", "--value", destinationDir}, factory.commands[0].args)
}

func TestExportOutputFileContent(t *testing.T) {
	factory := fakeCommandFactory{}
	exporter := Exporter{cmdFactory: &factory, fileManager: fileutil.NewFileManager()}

	destination := filepath.Join(t.TempDir(), "notes.txt")

	err := exporter.ExportOutputFileContent("release notes", destination, "DEPLOY_RELEASE_NOTES_PATH")

	require.NoError(t, err)
	content, err := os.ReadFile(destination)
	require.NoError(t, err)
	assert.Equal(t, "release notes", string(content))
	require.Len(t, factory.commands, 1)
	assert.Equal(t, []string{"add", "--key", "DEPLOY_RELEASE_NOTES_PATH", "--value", destination}, factory.commands[0].args)
}

func TestExportOutputCommandFailure(t *testing.T) {
	factory := fakeCommandFactory{output: "envman: no config found", err: os.ErrNotExist}
	exporter := Exporter{cmdFactory: &factory, fileManager: fileutil.NewFileManager()}

	err := exporter.ExportOutput("KEY", "value")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "envman: no config found")
}

type fakeCommandFactory struct {
	commands []*fakeCommand
	output   string
	err      error
}

func (f *fakeCommandFactory) Create(name string, args []string, _ *command.Opts) command.Command {
	cmd := &fakeCommand{name: name, args: args, output: f.output, err: f.err}
	f.commands = append(f.commands, cmd)
	return cmd
}

type fakeCommand struct {
	name   string
	args   []string
	output string
	err    error
}

func (c *fakeCommand) PrintableCommandArgs() string {
	return c.name
}

func (c *fakeCommand) Run() error {
	return c.err
}

func (c *fakeCommand) RunAndReturnExitCode() (int, error) {
	return 0, c.err
}

func (c *fakeCommand) RunAndReturnTrimmedOutput() (string, error) {
	return c.output, c.err
}

func (c *fakeCommand) RunAndReturnTrimmedCombinedOutput() (string, error) {
	return c.output, c.err
}

func (c *fakeCommand) Start() error {
	return c.err
}

func (c *fakeCommand) Wait() error {
	return c.err
}

func (c *fakeCommand) Signal(sig os.Signal) error {
	return c.err
}

func (c *fakeCommand) Kill() error {
	return c.err
}
