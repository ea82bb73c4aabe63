package config

const (
	defaultConfigPath         = "~/.config/juicenet/config.toml"
	defaultStateDir           = "~/.local/share/juicenet"
	defaultStagingDir         = "~/.local/share/juicenet/staging"
	defaultNZBDir             = "~/.local/share/juicenet/nzb"
	defaultLogDir             = "~/.local/share/juicenet/logs"
	defaultNyuuBinary         = "nyuu"
	defaultParParBinary       = "parpar"
	defaultNodeBinary         = "node"
	defaultEncoderModule      = "yencode"
	defaultMinFileSize        = "1MB"
	defaultReleaseDepth       = 1
	defaultRedundancy         = 10
	defaultParityOutput       = ParityOutputStaging
	defaultMinSliceSize       = "1MiB"
	defaultMaxSlices          = 10000
	defaultNNTPPort           = 563
	defaultServerConnections  = 20
	defaultArticleSize        = "700KiB"
	defaultSubject            = "{filename} [{0part}/{parts}] - \"{filename}\" yEnc ({part}/{parts}) {filesize}"
	defaultPoster             = "juicenet <juicenet@localhost>"
	defaultObfuscation        = ObfuscationNone
	defaultSampleMode         = SampleModeFixed
	defaultSampleCount        = 20
	defaultSamplePercent      = 1.0
	defaultSizeTolerance      = 0.05
	defaultVerifyTimeout      = 30
	defaultWorkers            = 2
	defaultStopGraceSeconds   = 30
	defaultKillGraceSeconds   = 10
	defaultMaxAttempts        = 3
	defaultBaseDelaySeconds   = 30
	defaultMaxDelaySeconds    = 600
	defaultBackoffMultiplier  = 2.0
	defaultNotifyTimeout      = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultArchivePrefix      = "nzb"
	defaultDumpFailedPostsDir = "~/.local/share/juicenet/raw"
	defaultScope              = ScopePrivate
)

// Parity output locations.
const (
	ParityOutputStaging = "staging"
	ParityOutputSource  = "source"
)

// Subject obfuscation policies.
const (
	ObfuscationNone    = "none"
	ObfuscationSubject = "subject"
	ObfuscationFull    = "full"
)

// NZB scopes; each gets its own subtree under paths.nzb_dir.
const (
	ScopePrivate = "private"
	ScopePublic  = "public"
)

// Presence check sampling modes.
const (
	SampleModeFixed        = "fixed"
	SampleModeProportional = "proportional"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			StagingDir: defaultStagingDir,
			NZBDir:     defaultNZBDir,
			LogDir:     defaultLogDir,
		},
		Tools: Tools{
			Nyuu:          defaultNyuuBinary,
			ParPar:        defaultParParBinary,
			Node:          defaultNodeBinary,
			EncoderModule: defaultEncoderModule,
		},
		Scan: Scan{
			MinFileSize:      defaultMinFileSize,
			MinFileSizeBytes: 1_000_000,
			ReleaseDepth:     defaultReleaseDepth,
		},
		Parity: Parity{
			Redundancy:    defaultRedundancy,
			Output:        defaultParityOutput,
			MinSliceSize:  defaultMinSliceSize,
			MinSliceBytes: 1 << 20,
			MaxSlices:     defaultMaxSlices,
		},
		Posting: Posting{
			ArticleSize:      defaultArticleSize,
			ArticleSizeBytes: 700 << 10,
			Subject:          defaultSubject,
			Poster:           defaultPoster,
			Obfuscation:      defaultObfuscation,
			DumpFailedPosts:  defaultDumpFailedPostsDir,
			Scope:            defaultScope,
		},
		Verification: Verification{
			SampleMode:     defaultSampleMode,
			SampleCount:    defaultSampleCount,
			SamplePercent:  defaultSamplePercent,
			SizeTolerance:  defaultSizeTolerance,
			RequestTimeout: defaultVerifyTimeout,
		},
		Workflow: Workflow{
			Workers:   defaultWorkers,
			StopGrace: defaultStopGraceSeconds,
			KillGrace: defaultKillGraceSeconds,
		},
		Retry: Retry{
			MaxAttempts: defaultMaxAttempts,
			BaseDelay:   defaultBaseDelaySeconds,
			MaxDelay:    defaultMaxDelaySeconds,
			Multiplier:  defaultBackoffMultiplier,
		},
		NZBArchive: NZBArchive{
			Prefix: defaultArchivePrefix,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			ReleaseFailed:  true,
			RunComplete:    true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
