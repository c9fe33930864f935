package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rbright/scout/internal/transcriber"
)

func noopTranscribe(samples []float32) (transcriber.Result, error) {
	return transcriber.Result{}, nil
}

func TestSelect_ShortDurationIsClassic(t *testing.T) {
	models := Models{FastPath: "fast.bin", FastName: "fast.bin"}
	s := Select(context.Background(), 100, 1600, ForceAuto, true, models, testFormat(), noopTranscribe, noopTranscribe, func() ([]byte, error) { return nil, nil }, "", nil)
	assert.IsType(t, &Classic{}, s)
}

func TestSelect_LongDurationSingleModelIsChunked(t *testing.T) {
	models := Models{FastPath: "fast.bin", FastName: "fast.bin"}
	s := Select(context.Background(), 32000, 1600, ForceAuto, true, models, testFormat(), noopTranscribe, noopTranscribe, func() ([]byte, error) { return nil, nil }, "", nil)
	assert.IsType(t, &RingBufferChunked{}, s)
}

func TestSelect_LongDurationTwoModelsIsProgressive(t *testing.T) {
	models := Models{FastPath: "fast.bin", FastName: "fast.bin", RefinePath: "refine.bin", RefineName: "refine.bin"}
	s := Select(context.Background(), 32000, 1600, ForceAuto, true, models, testFormat(), noopTranscribe, noopTranscribe, func() ([]byte, error) { return nil, nil }, "", nil)
	assert.IsType(t, &Progressive{}, s)
}

func TestSelect_ForceClassicOverridesLongDuration(t *testing.T) {
	models := Models{FastPath: "fast.bin", FastName: "fast.bin", RefinePath: "refine.bin", RefineName: "refine.bin"}
	s := Select(context.Background(), 32000, 1600, ForceClassic, true, models, testFormat(), noopTranscribe, noopTranscribe, func() ([]byte, error) { return nil, nil }, "", nil)
	assert.IsType(t, &Classic{}, s)
}

func TestSelect_ForceChunkedOverridesShortDuration(t *testing.T) {
	models := Models{FastPath: "fast.bin", FastName: "fast.bin"}
	s := Select(context.Background(), 100, 1600, ForceChunked, true, models, testFormat(), noopTranscribe, noopTranscribe, func() ([]byte, error) { return nil, nil }, "", nil)
	assert.IsType(t, &RingBufferChunked{}, s)
}

func TestSelect_ForceProgressiveWithoutRefineModelFallsBackToTable(t *testing.T) {
	models := Models{FastPath: "fast.bin", FastName: "fast.bin"}
	s := Select(context.Background(), 32000, 1600, ForceProgressive, true, models, testFormat(), noopTranscribe, noopTranscribe, func() ([]byte, error) { return nil, nil }, "", nil)
	assert.IsType(t, &RingBufferChunked{}, s)
}

func TestSelectLive_ForceChunkedOverridesTwoModels(t *testing.T) {
	models := Models{FastPath: "fast.bin", FastName: "fast.bin", RefinePath: "refine.bin", RefineName: "refine.bin"}
	s := SelectLive(context.Background(), ForceChunked, true, models, testFormat(), noopTranscribe, noopTranscribe, "", nil)
	assert.IsType(t, &RingBufferChunked{}, s)
}

func TestSelectLive_ForceClassicFallsBackToModelCount(t *testing.T) {
	models := Models{FastPath: "fast.bin", FastName: "fast.bin"}
	s := SelectLive(context.Background(), ForceClassic, true, models, testFormat(), noopTranscribe, noopTranscribe, "", nil)
	assert.IsType(t, &RingBufferChunked{}, s)
}

func TestModels_HasRefine(t *testing.T) {
	assert.False(t, (Models{}).HasRefine())
	assert.False(t, (Models{FastPath: "a.bin", RefinePath: "a.bin"}).HasRefine())
	assert.True(t, (Models{FastPath: "a.bin", RefinePath: "b.bin"}).HasRefine())
}
