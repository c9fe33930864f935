// Package config resolves, parses, validates, and defaults scout configuration.
package config

// Config is the fully materialized runtime configuration used by scout.
type Config struct {
	Audio             AudioConfig
	Paste             PasteConfig
	Models            ModelsConfig
	Chunking          ChunkingConfig
	RingBufferSeconds int
	Recordings        RecordingsConfig
	Transcript        TranscriptConfig
	Indicator         IndicatorConfig
	Clipboard         CommandConfig
	PasteCmd          CommandConfig
	Debug             DebugConfig
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// PasteConfig controls post-commit paste behavior.
type PasteConfig struct {
	Enable   bool
	Shortcut string
}

// ModelsConfig names the local whisper.cpp model files and hints passed to
// the transcriber at load and inference time.
type ModelsConfig struct {
	FastPath     string
	RefinePath   string
	Accelerator  string
	LanguageHint string
	BeamSize     int
}

// ChunkingConfig sizes the chunk scheduler's two tiers and the strategy
// selection threshold (spec §4.6, §4.7.4).
type ChunkingConfig struct {
	FastSeconds      float64
	RefineSeconds    float64
	ThresholdSeconds float64
	ForceStrategy    string
	MergeRefine      bool
}

// RecordingsConfig controls where finished-session WAV files are retained.
type RecordingsConfig struct {
	Dir string
}

// TranscriptConfig controls transcript assembly formatting.
type TranscriptConfig struct {
	TrailingSpace       bool
	CapitalizeSentences bool
}

// IndicatorConfig controls visual indicator and audio cue behavior.
type IndicatorConfig struct {
	Enable            bool
	Backend           string
	DesktopAppName    string
	SoundEnable       bool
	SoundStartFile    string
	SoundStopFile     string
	SoundCompleteFile string
	SoundCancelFile   string
	Height            int
	TextRecording     string
	TextProcessing    string
	TextError         string
	ErrorTimeoutMS    int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
