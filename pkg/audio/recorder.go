package audio

import (
	"context"
	"io"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/dtln/pkg/audio/registry"
)

type Recorder struct {
	RecorderPCM
}

func NewRecorder(recorderPCM RecorderPCM) *Recorder {
	return &Recorder{
		RecorderPCM: recorderPCM,
	}
}

type recorderFactory struct {
	registry.RecorderPCMFactory
}

func (f recorderFactory) New() (RecorderPCM, error) {
	return f.NewRecorderPCM()
}

func (f recorderFactory) Name() string {
	return registry.FactoryName(f.RecorderPCMFactory)
}

var lastSuccessfulRecorderFactory lastSuccessful[RecorderPCM]

func NewRecorderAuto(
	ctx context.Context,
) *Recorder {
	var factories []autoFactory[RecorderPCM]
	for _, f := range registry.RecorderFactories() {
		factories = append(factories, recorderFactory{RecorderPCMFactory: f})
	}

	recorder, err := pickAuto(ctx, "recorder", &lastSuccessfulRecorderFactory, factories)
	if err != nil {
		logger.Infof(ctx, "was unable to initialize any PCM recorder: %v", err)
		return NewRecorder(RecorderPCMDummy{})
	}
	return NewRecorder(recorder)
}

func (a *Recorder) RecordPCM(
	ctx context.Context,
	sampleRate SampleRate,
	channels Channel,
	pcmFormat PCMFormat,
	pcmWriter io.Writer,
) (RecordStream, error) {
	logger.Tracef(ctx, "RecordPCM: %T %d %d %s", a.RecorderPCM, sampleRate, channels, pcmFormat)
	return a.RecorderPCM.RecordPCM(
		ctx,
		sampleRate,
		channels,
		pcmFormat,
		pcmWriter,
	)
}
