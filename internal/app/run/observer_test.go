package run

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/citefix/internal/config"
	"github.com/John-Robertt/citefix/internal/domain"
)

type recordObserver struct {
	startCalls int
	phases     []string
	keys       []string
	files      []string
}

func (o *recordObserver) OnStart(config.EffectiveConfig) { o.startCalls++ }

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnKeyDone(idx, total int, w domain.WrongKey, d domain.Decision) {
	o.keys = append(o.keys, w.Key+"="+string(d.State))
}

func (o *recordObserver) OnFileDone(res domain.FileResult) {
	o.files = append(o.files, res.Path+"="+res.Status)
}

func TestExecute_EmitsPhaseKeyAndFileEvents(t *testing.T) {
	_, eff := thesis(t)
	obs := &recordObserver{}

	_, err := Execute(context.Background(), eff, Options{Logger: zerolog.Nop(), Observer: obs})
	require.NoError(t, err)

	assert.Equal(t, 1, obs.startCalls)
	assert.Equal(t, []string{"load", "scan", "match", "decide", "apply"}, obs.phases)
	assert.Equal(t, []string{"Smth2019=auto_corrected", "Gamma1999=unresolved"}, obs.keys)
	assert.Equal(t, []string{"kapitel/eins.tex=written", "main.tex=written"}, obs.files)
}
