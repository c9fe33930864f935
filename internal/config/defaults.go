package config

// defaultFastChunkSeconds, defaultRefineChunkSeconds and
// defaultThresholdSeconds follow spec §4.7.4's selection table: recordings
// shorter than one Fast chunk use Classic, anything longer chunks.
const (
	defaultFastChunkSeconds   = 5.0
	defaultRefineChunkSeconds = 10.0
	defaultThresholdSeconds   = 5.0
	defaultRingBufferSeconds  = 300
	defaultBeamSize           = 5
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Paste: PasteConfig{Enable: true, Shortcut: "CTRL,V"},
		Models: ModelsConfig{
			FastPath:     "ggml-base.en.bin",
			RefinePath:   "",
			Accelerator:  "cpu",
			LanguageHint: "en",
			BeamSize:     defaultBeamSize,
		},
		Chunking: ChunkingConfig{
			FastSeconds:      defaultFastChunkSeconds,
			RefineSeconds:    defaultRefineChunkSeconds,
			ThresholdSeconds: defaultThresholdSeconds,
			ForceStrategy:    "",
			MergeRefine:      true,
		},
		RingBufferSeconds: defaultRingBufferSeconds,
		Recordings:        RecordingsConfig{Dir: ""},
		Transcript: TranscriptConfig{
			TrailingSpace:       true,
			CapitalizeSentences: true,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "hypr",
			DesktopAppName: "scout-indicator",
			SoundEnable:    true,
			Height:         28,
			ErrorTimeoutMS: 1600,
		},
		Clipboard: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		Debug:     DebugConfig{},
	}
}
