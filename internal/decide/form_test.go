package decide

import (
	"errors"
	"fmt"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/citefix/internal/domain"
)

func TestChoiceOptions(t *testing.T) {
	w := wrongKey("Smth2019", 1,
		domain.Candidate{Key: "Smith2019", Score: 0.94},
		domain.Candidate{Key: "Smith2018", Score: 0.82},
	)

	opts := choiceOptions(w)
	var values []string
	for _, o := range opts {
		values = append(values, o.Value)
	}
	assert.Equal(t, []string{"0", "1", choiceManual, choiceAccept, choiceSkip, choiceQuit}, values)
	assert.Equal(t, "Smith2019 (94%)", opts[0].Key)

	assert.Len(t, choiceOptions(wrongKey("Gamma1999", 1)), 4, "没有候选时只剩固定动作")
}

func TestFromChoice(t *testing.T) {
	w := wrongKey("Smth2019", 2,
		domain.Candidate{Key: "Smith2019", Score: 0.94},
		domain.Candidate{Key: "Smith2018", Score: 0.82},
	)

	cases := []struct {
		choice string
		manual string
		want   domain.Decision
	}{
		{"0", "", domain.Decision{Key: "Smth2019", State: domain.StateCorrected, Replacement: "Smith2019", Confidence: 0.94}},
		{"1", "", domain.Decision{Key: "Smth2019", State: domain.StateCorrected, Replacement: "Smith2018", Confidence: 0.82}},
		{choiceManual, "  Zeta2022 ", domain.Decision{Key: "Smth2019", State: domain.StateCorrected, Replacement: "Zeta2022", Manual: true}},
		{choiceAccept, "", domain.Decision{Key: "Smth2019", State: domain.StateAccepted}},
		{choiceSkip, "", domain.Decision{Key: "Smth2019", State: domain.StateSkipped}},
	}
	for _, tc := range cases {
		t.Run(tc.choice, func(t *testing.T) {
			d, err := fromChoice(w, tc.choice, tc.manual)
			require.NoError(t, err)
			assert.Equal(t, tc.want, d)
		})
	}
}

func TestFromChoice_Errors(t *testing.T) {
	w := wrongKey("Smth2019", 1, domain.Candidate{Key: "Smith2019", Score: 0.94})

	_, err := fromChoice(w, choiceQuit, "")
	assert.ErrorIs(t, err, ErrSessionEnded)

	for _, choice := range []string{"1", "-1", "", "bogus"} {
		_, err := fromChoice(w, choice, "")
		require.Error(t, err, "choice=%q", choice)
		assert.Contains(t, err.Error(), "未知选项")
	}

	for _, key := range []string{"", "Smth2019", "a,b"} {
		_, err := fromChoice(w, choiceManual, key)
		assert.Error(t, err, "manual=%q", key)
	}
}

func TestConfirmed(t *testing.T) {
	ok, err := confirmed(true, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = confirmed(true, ErrSessionEnded)
	require.NoError(t, err, "中止确认不是错误")
	assert.False(t, ok)

	boom := errors.New("tty gone")
	ok, err = confirmed(true, boom)
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)

	assert.Equal(t, "将在 2 个文件中修正 3 处引用（1 个 key），写入？",
		confirmTitle(Plan{Corrections: 3, Keys: 1, Files: []string{"a.tex", "b.tex"}}))
}

func TestAborted(t *testing.T) {
	assert.ErrorIs(t, aborted(huh.ErrUserAborted), ErrSessionEnded)
	assert.ErrorIs(t, aborted(fmt.Errorf("run: %w", huh.ErrUserAborted)), ErrSessionEnded)
	assert.NoError(t, aborted(nil))
	boom := errors.New("boom")
	assert.Equal(t, boom, aborted(boom))
}
