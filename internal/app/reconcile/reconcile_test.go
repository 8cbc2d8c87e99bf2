package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/citefix/internal/decide"
	"github.com/John-Robertt/citefix/internal/domain"
	"github.com/John-Robertt/citefix/internal/match"
	"github.com/John-Robertt/citefix/internal/registry"
)

// scriptedSource 按 key 返回预设决定；未预设的 key 返回 err（默认结束会话）。
type scriptedSource struct {
	decisions map[string]func(domain.WrongKey) domain.Decision
	err       error
	asked     []string
}

func (s *scriptedSource) Decide(_ context.Context, req decide.Request) (domain.Decision, error) {
	s.asked = append(s.asked, req.Key.Key)
	if f, ok := s.decisions[req.Key.Key]; ok {
		return f(req.Key), nil
	}
	if s.err != nil {
		return domain.Decision{}, s.err
	}
	return domain.Decision{}, decide.ErrSessionEnded
}

func occ(key, rel string, line int) domain.Occurrence {
	return domain.Occurrence{Key: key, File: "/corpus/" + rel, RelPath: rel, Line: line}
}

func mustKeys(t *testing.T, keys ...string) registry.KeySet {
	t.Helper()
	ks, err := registry.NewKeySet(keys...)
	require.NoError(t, err)
	return ks
}

func TestCollect_GroupsFirstSeenAndIgnores(t *testing.T) {
	reg := mustKeys(t, "Smith2019")
	occs := []domain.Occurrence{
		occ("Smith2019", "a.tex", 1),
		occ("Zulu2000", "a.tex", 2),
		occ("Alpha2000", "a.tex", 3),
		occ("Zulu2000", "b.tex", 1),
		occ("draftX", "b.tex", 2),
	}

	got := Collect(occs, reg, registry.NewIgnoreList("draft*"))
	require.Len(t, got, 2)
	assert.Equal(t, "Zulu2000", got[0].Key)
	assert.Equal(t, []domain.Occurrence{occ("Zulu2000", "a.tex", 2), occ("Zulu2000", "b.tex", 1)}, got[0].Occurrences)
	assert.Equal(t, "Alpha2000", got[1].Key)
}

func TestScenarioA_AutoCorrect(t *testing.T) {
	reg := mustKeys(t, "Smith2019")
	wks := Collect([]domain.Occurrence{occ("Smth2019", "main.tex", 1)}, reg, nil)
	Rank(wks, match.New(reg.Keys()), 0.70)

	out, err := Reconcile(context.Background(), wks, decide.Auto{Threshold: 0.92}, nil)
	require.NoError(t, err)
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, domain.StateAutoCorrected, out.Decisions[0].State)
	assert.Equal(t, map[string]string{"Smth2019": "Smith2019"}, out.Mapping)

	corr, unres, acc := Build(wks, out)
	require.Len(t, corr, 1)
	assert.Equal(t, "Smith2019", corr[0].CorrectKey)
	assert.GreaterOrEqual(t, corr[0].Confidence, 0.92)
	assert.Empty(t, unres)
	assert.Empty(t, acc)
}

func TestScenarioB_NoCandidates(t *testing.T) {
	reg := mustKeys(t, "Alpha2020", "Beta2021")
	wks := Collect([]domain.Occurrence{occ("Gamma1999", "main.tex", 4)}, reg, nil)
	Rank(wks, match.New(reg.Keys()), 0.60)

	out, err := Reconcile(context.Background(), wks, decide.Auto{Threshold: 0.92}, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Mapping)

	corr, unres, _ := Build(wks, out)
	assert.Empty(t, corr)
	require.Len(t, unres, 1)
	assert.Equal(t, domain.StateUnresolved, unres[0].State)
	assert.NotNil(t, unres[0].Candidates)
	assert.Empty(t, unres[0].Candidates)
	assert.Equal(t, 4, unres[0].Line)
}

func TestReconcile_TerminationKeepsPriorDecisions(t *testing.T) {
	wks := []domain.WrongKey{
		{Key: "A", Occurrences: []domain.Occurrence{occ("A", "a.tex", 1)}, Candidates: []domain.Candidate{{Key: "Aa", Score: 0.8}}},
		{Key: "B", Occurrences: []domain.Occurrence{occ("B", "a.tex", 2)}},
		{Key: "C", Occurrences: []domain.Occurrence{occ("C", "a.tex", 3)}},
	}
	src := &scriptedSource{decisions: map[string]func(domain.WrongKey) domain.Decision{
		"A": func(w domain.WrongKey) domain.Decision { return decide.Correct(w, w.Candidates[0]) },
	}}

	var seen []domain.KeyState
	out, err := Reconcile(context.Background(), wks, src, func(_, _ int, _ domain.WrongKey, d domain.Decision) {
		seen = append(seen, d.State)
	})
	require.NoError(t, err)
	assert.True(t, out.Ended)
	assert.Equal(t, []string{"A", "B"}, src.asked, "结束后不再询问")
	assert.Equal(t, map[string]string{"A": "Aa"}, out.Mapping)
	assert.Equal(t, []domain.KeyState{domain.StateCorrected, domain.StateSkipped, domain.StateSkipped}, seen)

	corr, unres, _ := Build(wks, out)
	assert.Len(t, corr, 1)
	assert.Len(t, unres, 2)
}

func TestReconcile_ScenarioD_ManualKey(t *testing.T) {
	wks := []domain.WrongKey{{Key: "Zeta2021", Occurrences: []domain.Occurrence{occ("Zeta2021", "a.tex", 1), occ("Zeta2021", "b.tex", 9)}}}
	src := &scriptedSource{decisions: map[string]func(domain.WrongKey) domain.Decision{
		"Zeta2021": func(w domain.WrongKey) domain.Decision { return decide.Manual(w, "Zeta2022") },
	}}

	out, err := Reconcile(context.Background(), wks, src, nil)
	require.NoError(t, err)
	corr, _, _ := Build(wks, out)
	require.Len(t, corr, 2, "映射作用于该 key 的所有出现")
	for _, c := range corr {
		assert.True(t, c.Manual)
		assert.Equal(t, "Zeta2022", c.CorrectKey)
	}

	// Zeta2022 仍不在 registry 中：下一次对账会把它当作新的错误 key。
	reg := mustKeys(t, "Other2000")
	next := Collect([]domain.Occurrence{occ("Zeta2022", "a.tex", 1)}, reg, nil)
	require.Len(t, next, 1)
	assert.Equal(t, "Zeta2022", next[0].Key)
}

func TestReconcile_AcceptAndSkip(t *testing.T) {
	wks := []domain.WrongKey{
		{Key: "New2024", Occurrences: []domain.Occurrence{occ("New2024", "a.tex", 1)}},
		{Key: "Typo", Occurrences: []domain.Occurrence{occ("Typo", "a.tex", 2)}},
	}
	src := &scriptedSource{decisions: map[string]func(domain.WrongKey) domain.Decision{
		"New2024": decide.Accept,
		"Typo":    decide.Skip,
	}}

	out, err := Reconcile(context.Background(), wks, src, nil)
	require.NoError(t, err)
	assert.False(t, out.Ended)
	corr, unres, acc := Build(wks, out)
	assert.Empty(t, corr)
	assert.Equal(t, []string{"New2024"}, acc)
	require.Len(t, unres, 1)
	assert.Equal(t, domain.StateSkipped, unres[0].State)
}

func TestReconcile_RejectsSelfMapping(t *testing.T) {
	wks := []domain.WrongKey{{Key: "X"}}
	src := &scriptedSource{decisions: map[string]func(domain.WrongKey) domain.Decision{
		"X": func(w domain.WrongKey) domain.Decision { return decide.Manual(w, "X") },
	}}
	_, err := Reconcile(context.Background(), wks, src, nil)
	var ie *InvariantError
	assert.True(t, errors.As(err, &ie))
}

func TestReconcile_SourceErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	_, err := Reconcile(context.Background(), []domain.WrongKey{{Key: "X"}}, &scriptedSource{err: boom}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestThresholdMonotonicity(t *testing.T) {
	reg := mustKeys(t, "Smith2019", "Smith2018", "Jones2020", "Mueller2018", "Meyer2017")
	occs := []domain.Occurrence{
		occ("Smth2019", "a.tex", 1),
		occ("Muller2018", "a.tex", 2),
		occ("Jons2020", "a.tex", 3),
		occ("Mayer2017x", "a.tex", 4),
	}
	wks := Collect(occs, reg, nil)
	Rank(wks, match.New(reg.Keys()), 0.5)

	corrected := func(th float64) map[string]bool {
		out, err := Reconcile(context.Background(), wks, decide.Auto{Threshold: th}, nil)
		require.NoError(t, err)
		got := map[string]bool{}
		for i, d := range out.Decisions {
			if d.State == domain.StateAutoCorrected {
				got[d.Key] = true
				// 选中的一定是最高分候选。
				assert.Equal(t, wks[i].Candidates[0].Key, d.Replacement)
				assert.GreaterOrEqual(t, d.Confidence, th)
			}
		}
		return got
	}

	prev := corrected(1.0)
	for _, th := range []float64{0.95, 0.9, 0.85, 0.8, 0.7, 0.6} {
		cur := corrected(th)
		for k := range prev {
			assert.True(t, cur[k], "降低阈值后 %q 不应变回 unresolved（th=%v）", k, th)
		}
		prev = cur
	}
	assert.Len(t, prev, len(wks))
}

func TestUnwritten_MovesCorrectionsOfFailedFiles(t *testing.T) {
	wks := []domain.WrongKey{{
		Key:         "Smth2019",
		Occurrences: []domain.Occurrence{occ("Smth2019", "a.tex", 1), occ("Smth2019", "b.tex", 4)},
		Candidates:  []domain.Candidate{{Key: "Smith2019", Score: 0.94}},
	}}
	cs := []domain.Correction{
		{File: "a.tex", Line: 1, WrongKey: "Smth2019", CorrectKey: "Smith2019", Confidence: 0.94},
		{File: "b.tex", Line: 4, WrongKey: "Smth2019", CorrectKey: "Smith2019", Confidence: 0.94},
	}

	kept, moved := Unwritten(wks, cs, map[string]struct{}{"b.tex": {}})
	assert.Equal(t, cs[:1], kept)
	require.Len(t, moved, 1)
	assert.Equal(t, domain.UnresolvedKey{
		File:       "b.tex",
		Line:       4,
		WrongKey:   "Smth2019",
		State:      domain.StateNotWritten,
		Candidates: []domain.Candidate{{Key: "Smith2019", Score: 0.94}},
	}, moved[0])

	kept, moved = Unwritten(wks, cs, nil)
	assert.Equal(t, cs, kept)
	assert.Empty(t, moved)
}
