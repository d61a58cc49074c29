package deploy

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/filedownloader"
	"github.com/bitrise-io/go-utils/v2/fileutil"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"
	"github.com/endpointops/go-deployutils/archive"
	"github.com/endpointops/go-deployutils/auth"
	"github.com/endpointops/go-deployutils/deploy/network"
	"github.com/endpointops/go-deployutils/deploy/network/chunker"
	"github.com/endpointops/go-deployutils/stepconf"
	"github.com/endpointops/go-deployutils/target"
)

// Default platform tags uploads are created for when the input names none.
const (
	defaultPlatformIntel = "Mac_Intel"
	defaultPlatformARM   = "Mac_AppleSilicon"
)

// DeployInput is the information that comes from the deploy steps that call this shared implementation
type DeployInput struct {
	Verbose bool
	// ArtifactPath is a local zip archive, a directory to package, or an
	// http(s) URL to download the archive from.
	ArtifactPath string
	// AppName and AppVersion name the archive when ArtifactPath is a
	// directory. For archives they are parsed from the file name instead.
	AppName    string
	AppVersion string

	OrgID  string
	Region string
	// Platforms the artifact is registered for. Defaults to both Mac
	// platform tags.
	Platforms []string

	// Protocol is either "byte-range" (default) or "chunk-id".
	Protocol string
	// ChunkSize is a human-readable size such as "24MB".
	ChunkSize string
	// Throttle caps parallel chunk transmissions for the chunk-id protocol.
	Throttle int

	// Optional version metadata.
	ReleaseDate  string
	ReleaseNotes string
	UpdateType   string
	CVE          string

	// Package creation fields, used when no package with the artifact's
	// name exists yet. Scope cannot be changed after creation.
	Vendor      string
	Description string
	Scope       string

	// CreatePolicy also creates a deploy automation for the new version.
	CreatePolicy bool
}

// Deployer ...
type Deployer interface {
	Deploy(ctx context.Context, input DeployInput) error
}

type deployEnvConfig struct {
	APIBaseURL   string          `env:"DEPLOY_API_BASE_URL"`
	ClientID     string          `env:"DEPLOY_API_CLIENT_ID,required"`
	ClientSecret stepconf.Secret `env:"DEPLOY_API_CLIENT_SECRET,required"`

	AWSBucket          string          `env:"DEPLOY_AWS_BUCKET"`
	AWSRegion          string          `env:"DEPLOY_AWS_REGION"`
	AWSAccessKeyID     stepconf.Secret `env:"DEPLOY_AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey stepconf.Secret `env:"DEPLOY_AWS_SECRET_ACCESS_KEY"`
}

type deployConfig struct {
	deployEnvConfig

	OrgID     string
	Platforms []string
	Protocol  network.ProtocolVariant
	ChunkSize int64
	Throttle  int
}

type deployer struct {
	envRepo      env.Repository
	logger       log.Logger
	pathProvider pathutil.PathProvider
	pathModifier pathutil.PathModifier
	pathChecker  pathutil.PathChecker
	fileProvider stepconf.FileProvider
	uploader     network.Uploader
	fetcher      network.Fetcher
}

// NewDeployer creates a new deployer instance. `uploader` and `fetcher` can be nil, unless you
// want to provide custom implementations.
func NewDeployer(
	envRepo env.Repository,
	logger log.Logger,
	pathProvider pathutil.PathProvider,
	pathModifier pathutil.PathModifier,
	pathChecker pathutil.PathChecker,
	uploader network.Uploader,
	fetcher network.Fetcher,
) *deployer {
	var uploaderImpl network.Uploader = uploader
	if uploader == nil {
		uploaderImpl = network.DefaultUploader{}
	}
	var fetcherImpl network.Fetcher = fetcher
	if fetcher == nil {
		fetcherImpl = network.DefaultFetcher{}
	}
	return &deployer{
		envRepo:      envRepo,
		logger:       logger,
		pathProvider: pathProvider,
		pathModifier: pathModifier,
		pathChecker:  pathChecker,
		fileProvider: stepconf.NewFileProvider(
			filedownloader.NewDownloader(logger),
			fileutil.NewFileManager(),
			pathProvider,
			pathModifier,
		),
		uploader: uploaderImpl,
		fetcher:  fetcherImpl,
	}
}

// Deploy ...
func (d *deployer) Deploy(ctx context.Context, input DeployInput) error {
	d.logger.TDebugf("Deploy start")
	defer func() {
		d.logger.TDebugf("Deploy done")
	}()

	config, err := d.createConfig(input)
	if err != nil {
		return fmt.Errorf("failed to parse inputs: %w", err)
	}
	d.logger.TDebugf("Config created")

	tracker := newDeployTracker(d.envRepo, d.logger)
	defer tracker.wait()

	archivePath, err := d.prepareArtifact(ctx, input, &tracker)
	if err != nil {
		return err
	}
	d.logger.TDebugf("Artifact prepared")

	fileInfo, err := os.Stat(archivePath)
	if err != nil {
		return err
	}
	d.logger.Printf("Archive size: %s", units.HumanSizeWithPrecision(float64(fileInfo.Size()), 3))
	d.logger.Debugf("Archive path: %s", archivePath)

	archiveChecksum, err := checksumOfFile(archivePath)
	if err != nil {
		d.logger.Warnf(err.Error())
		// fail silently and continue
	}
	d.logger.TDebugf("Archive checksum computed")

	fileName := filepath.Base(archivePath)
	canSkip, reason := d.canSkipUpload(fileName, archiveChecksum)
	d.logger.Println()
	if canSkip {
		tracker.logUploadSkipped(reason)
		d.logger.Donef("Artifact upload can be skipped, reason: %s", reason)
		return nil
	}
	d.logger.Infof("Can't skip uploading the artifact, reason: %s", reason)

	releaseNotes, err := d.resolveReleaseNotes(ctx, input.ReleaseNotes)
	if err != nil {
		return fmt.Errorf("failed to read release notes: %w", err)
	}

	tokens := auth.NewProvider(config.APIBaseURL, config.ClientID, config.ClientSecret, d.logger)
	catalog := target.NewClient(config.APIBaseURL, tokens, d.logger)
	resolver := target.NewResolver(catalog, d.logger)

	targets, err := resolver.Resolve(ctx, target.ResolveInput{
		OrgID:       config.OrgID,
		ArchivePath: archivePath,
		Platforms:   config.Platforms,
		PackageDefaults: target.PackageSpec{
			Vendor:      input.Vendor,
			Description: input.Description,
			Scope:       input.Scope,
			Platform:    "Mac",
		},
		Metadata: target.VersionMetadata{
			ReleaseDate: input.ReleaseDate,
			Notes:       releaseNotes,
			UpdateType:  input.UpdateType,
			CVE:         input.CVE,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to resolve upload targets: %w", err)
	}
	d.logger.TDebugf("Upload targets resolved")

	d.logger.Println()
	d.logger.Infof("Uploading archive...")
	uploadStartTime := time.Now()
	for _, uploadTarget := range targets {
		d.logger.Printf(" - platform: %s", uploadTarget.Platform)
		if err := d.upload(ctx, archivePath, fileInfo.Size(), archiveChecksum, uploadTarget, config, tokens); err != nil {
			return fmt.Errorf("artifact upload failed: %w", err)
		}
	}
	uploadTime := time.Since(uploadStartTime).Round(time.Second)
	d.logger.Donef("Archive uploaded in %s", uploadTime)
	tracker.logArtifactUploaded(uploadTime, fileInfo, len(targets))

	if err := d.envRepo.Set(deployedChecksumEnvVarPrefix+fileName, archiveChecksum); err != nil {
		d.logger.Warnf("Failed to expose deployed artifact checksum: %s", err)
	}

	if input.CreatePolicy {
		name, version, err := target.ParseArtifactName(archivePath)
		if err != nil {
			return err
		}
		policyName := fmt.Sprintf("Deploy %s %s", name, version)
		policy, err := catalog.CreateDeployPolicy(ctx, config.OrgID, policyName, targets[0].PackageID, targets[0].VersionID)
		if err != nil {
			return fmt.Errorf("failed to create deploy policy: %w", err)
		}
		d.logger.Donef("Created deploy policy %s (id=%s)", policyName, policy.ID)
	}

	return nil
}

// prepareArtifact turns the artifact input into a local zip archive: remote
// URLs are downloaded, directories are packaged, archives pass through.
func (d *deployer) prepareArtifact(ctx context.Context, input DeployInput, tracker *deployTracker) (string, error) {
	artifactPath := input.ArtifactPath

	if strings.HasPrefix(artifactPath, "file://") {
		localPath, err := d.fileProvider.LocalPath(ctx, artifactPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve artifact path: %w", err)
		}
		artifactPath = localPath
	}

	if isRemoteURL(artifactPath) {
		tempDir, err := d.pathProvider.CreateTempDir("deploy-fetch")
		if err != nil {
			return "", err
		}

		d.logger.Infof("Fetching artifact from %s", artifactPath)
		fetchStartTime := time.Now()
		downloaded, err := d.fetcher.Fetch(ctx, network.FetchParams{
			SourceURL:    artifactPath,
			DownloadPath: filepath.Join(tempDir, remoteFileName(artifactPath)),
		}, d.logger)
		if err != nil {
			return "", fmt.Errorf("failed to fetch artifact: %w", err)
		}
		fetchTime := time.Since(fetchStartTime).Round(time.Second)
		tracker.logArtifactFetched(fetchTime, input.ArtifactPath)
		d.logger.Donef("Artifact fetched in %s", fetchTime)
		artifactPath = downloaded
	}

	absPath, err := d.pathModifier.AbsPath(artifactPath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(absPath)
	if err != nil && !strings.Contains(absPath, "*") {
		return "", fmt.Errorf("artifact not found: %w", err)
	}
	if err == nil && !info.IsDir() {
		return absPath, nil
	}

	// A directory or a wildcard pattern names source trees to package.
	if input.AppName == "" || input.AppVersion == "" {
		return "", fmt.Errorf("app name and version are required to package a directory")
	}
	includePaths, err := archive.ExpandPaths([]string{absPath}, d.pathModifier, d.pathChecker, d.logger)
	if err != nil {
		return "", err
	}
	if len(includePaths) == 0 {
		return "", fmt.Errorf("no artifact matches %s", artifactPath)
	}
	if archive.AreAllPathsEmpty(includePaths) {
		return "", fmt.Errorf("artifact paths are empty: %s", strings.Join(includePaths, ", "))
	}

	tempDir, err := d.pathProvider.CreateTempDir("deploy-package")
	if err != nil {
		return "", err
	}
	archivePath := filepath.Join(tempDir, fmt.Sprintf("%s-%s.zip", input.AppName, input.AppVersion))

	d.logger.Println()
	d.logger.Infof("Creating archive...")
	packagingStartTime := time.Now()
	packager := archive.NewPackager(d.logger, d.envRepo, archive.NewDependencyChecker(d.logger, d.envRepo))
	if err := packager.Package(archivePath, includePaths); err != nil {
		return "", fmt.Errorf("packaging failed: %w", err)
	}
	packagingTime := time.Since(packagingStartTime).Round(time.Second)
	d.logger.Donef("Archive created in %s", packagingTime)

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return "", err
	}
	tracker.logArtifactPackaged(packagingTime, archiveInfo)

	return archivePath, nil
}

func (d *deployer) upload(ctx context.Context, archivePath string, archiveSize int64, archiveChecksum string, uploadTarget network.UploadTarget, config deployConfig, tokens auth.TokenProvider) error {
	if config.AWSBucket != "" {
		return network.UploadToS3(ctx, network.S3UploadParams{
			ArchivePath:     archivePath,
			ArchiveChecksum: archiveChecksum,
			ArchiveSize:     archiveSize,
			Target:          uploadTarget,
			Region:          config.AWSRegion,
			Bucket:          config.AWSBucket,
			AccessKeyID:     string(config.AWSAccessKeyID),
			SecretAccessKey: string(config.AWSSecretAccessKey),
		}, d.logger)
	}

	token, err := tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	params := network.UploadParams{
		APIBaseURL:  config.APIBaseURL,
		Token:       token,
		ArchivePath: archivePath,
		Target:      uploadTarget,
		Protocol:    config.Protocol,
		ChunkSize:   config.ChunkSize,
		Throttle:    config.Throttle,
	}
	return d.uploader.Upload(ctx, params, d.logger)
}

func (d *deployer) createConfig(input DeployInput) (deployConfig, error) {
	if strings.TrimSpace(input.ArtifactPath) == "" {
		return deployConfig{}, fmt.Errorf("artifact path should not be empty")
	}
	if strings.TrimSpace(input.OrgID) == "" {
		return deployConfig{}, fmt.Errorf("organization ID should not be empty")
	}

	var envCfg deployEnvConfig
	if err := stepconf.NewInputParser(d.envRepo).Parse(&envCfg); err != nil {
		return deployConfig{}, err
	}

	if envCfg.APIBaseURL == "" {
		region := target.Region(input.Region)
		if region == "" {
			region = target.RegionEurope
		}
		baseURL, err := target.APIBaseURL(region)
		if err != nil {
			return deployConfig{}, err
		}
		envCfg.APIBaseURL = baseURL
	}

	protocol, err := parseProtocol(input.Protocol)
	if err != nil {
		return deployConfig{}, err
	}

	chunkSize := int64(chunker.DefaultChunkSizeBytes)
	if input.ChunkSize != "" {
		chunkSize, err = units.RAMInBytes(input.ChunkSize)
		if err != nil {
			return deployConfig{}, fmt.Errorf("invalid chunk size %q: %w", input.ChunkSize, err)
		}
	}
	if chunkSize < chunker.MinChunkSizeBytes {
		return deployConfig{}, fmt.Errorf("chunk size must be at least %s",
			units.HumanSizeWithPrecision(float64(chunker.MinChunkSizeBytes), 3))
	}

	platforms := input.Platforms
	if len(platforms) == 0 {
		platforms = []string{defaultPlatformIntel, defaultPlatformARM}
	}

	return deployConfig{
		deployEnvConfig: envCfg,
		OrgID:           input.OrgID,
		Platforms:       platforms,
		Protocol:        protocol,
		ChunkSize:       chunkSize,
		Throttle:        input.Throttle,
	}, nil
}

func parseProtocol(protocol string) (network.ProtocolVariant, error) {
	switch protocol {
	case "", "byte-range":
		return network.ByteRangeResumable, nil
	case "chunk-id":
		return network.ChunkIDFinalize, nil
	default:
		return 0, fmt.Errorf("unknown upload protocol: %s", protocol)
	}
}

// resolveReleaseNotes accepts the notes verbatim, or reads them from a
// file:// path or http(s) URL reference.
func (d *deployer) resolveReleaseNotes(ctx context.Context, notes string) (string, error) {
	if !strings.HasPrefix(notes, "file://") && !isRemoteURL(notes) {
		return notes, nil
	}

	reader, err := d.fileProvider.Contents(ctx, notes)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			d.logger.Warnf("Failed to close release notes reader: %s", err)
		}
	}()

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func isRemoteURL(artifactPath string) bool {
	return strings.HasPrefix(artifactPath, "http://") || strings.HasPrefix(artifactPath, "https://")
}

func remoteFileName(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || path.Base(parsed.Path) == "/" || path.Base(parsed.Path) == "." {
		return "artifact.zip"
	}
	return path.Base(parsed.Path)
}
