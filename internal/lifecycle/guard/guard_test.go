package guard

import (
	"testing"

	"github.com/smallbiznis/franchisefund/internal/apperror"
	franchisedomain "github.com/smallbiznis/franchisefund/internal/franchise/domain"
	"github.com/stretchr/testify/require"
)

func TestEnsureCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from franchisedomain.Stage
		to   franchisedomain.Stage
		err  error
	}{
		{"funding to launching", franchisedomain.StageFunding, franchisedomain.StageLaunching, nil},
		{"launching to ongoing", franchisedomain.StageLaunching, franchisedomain.StageOngoing, nil},
		{"ongoing to closed", franchisedomain.StageOngoing, franchisedomain.StageClosed, nil},
		{"funding to closed", franchisedomain.StageFunding, franchisedomain.StageClosed, nil},
		{"launching to closed", franchisedomain.StageLaunching, franchisedomain.StageClosed, nil},
		{"launching back to funding", franchisedomain.StageLaunching, franchisedomain.StageFunding, ErrStageRegression},
		{"ongoing back to launching", franchisedomain.StageOngoing, franchisedomain.StageLaunching, ErrStageRegression},
		{"funding skips to ongoing", franchisedomain.StageFunding, franchisedomain.StageOngoing, ErrStageSkipped},
		{"closed is terminal", franchisedomain.StageClosed, franchisedomain.StageFunding, ErrStageTerminal},
		{"same stage", franchisedomain.StageFunding, franchisedomain.StageFunding, ErrStageUnchanged},
		{"unknown stage", franchisedomain.Stage("paused"), franchisedomain.StageFunding, ErrUnknownStage},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := EnsureCanTransition(tc.from, tc.to)
			if tc.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestEnsureStage(t *testing.T) {
	require.NoError(t, EnsureStage(franchisedomain.StageLaunching, franchisedomain.StageLaunching))

	err := EnsureStage(franchisedomain.StageFunding, franchisedomain.StageLaunching)
	require.ErrorIs(t, err, ErrStageNotExpected)
	require.True(t, apperror.IsInvalidState(err))
}
