package schemas_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// TestStructJSONTags uses reflection to verify the json tags on the wire
// structs. The JSONL stream and the stored manifests depend on these
// staying stable.
func TestStructJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "StepResult",
			structRef: schemas.StepResult{},
			expectedTags: map[string]string{
				"Index":      "index",
				"Line":       "line",
				"Verb":       "verb",
				"Text":       "text",
				"Status":     "status",
				"Error":      "error,omitempty",
				"Screenshot": "screenshot,omitempty",
				"StartedAt":  "started_at",
				"Duration":   "duration_ns",
			},
		},
		{
			name:      "SuiteResult",
			structRef: schemas.SuiteResult{},
			expectedTags: map[string]string{
				"Name":      "name",
				"Path":      "path",
				"Status":    "status",
				"Steps":     "steps",
				"StartedAt": "started_at",
				"Duration":  "duration_ns",
				"Error":     "error,omitempty",
			},
		},
		{
			name:      "RunManifest",
			structRef: schemas.RunManifest{},
			expectedTags: map[string]string{
				"RunID":     "run_id",
				"Title":     "title",
				"StartedAt": "started_at",
				"Duration":  "duration_ns",
				"Suites":    "suites",
				"Totals":    "totals",
			},
		},
		{
			name:      "StreamEvent",
			structRef: schemas.StreamEvent{},
			expectedTags: map[string]string{
				"Type":      "type",
				"RunID":     "run_id,omitempty",
				"Suite":     "suite,omitempty",
				"Status":    "status,omitempty",
				"Step":      "step,omitempty",
				"Totals":    "totals,omitempty",
				"Timestamp": "timestamp",
			},
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			structType := reflect.TypeOf(tt.structRef)
			actualTags := make(map[string]string)

			for i := 0; i < structType.NumField(); i++ {
				field := structType.Field(i)
				if jsonTag := field.Tag.Get("json"); jsonTag != "" {
					actualTags[field.Name] = jsonTag
				}
			}

			assert.Equal(t, tt.expectedTags, actualTags, "json tags for %s drifted", tt.name)
		})
	}
}

func TestSuiteCounts(t *testing.T) {
	suite := schemas.SuiteResult{
		Steps: []schemas.StepResult{
			{Status: schemas.StepPassed},
			{Status: schemas.StepPassed},
			{Status: schemas.StepFailed},
			{Status: schemas.StepSkipped},
			{Status: schemas.StepSkipped},
		},
	}

	passed, failed, skipped := suite.Counts()
	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, skipped)
}

func TestManifestRecount(t *testing.T) {
	manifest := schemas.RunManifest{
		Suites: []schemas.SuiteResult{
			{
				Status: schemas.SuitePassed,
				Steps: []schemas.StepResult{
					{Status: schemas.StepPassed},
					{Status: schemas.StepPassed},
				},
			},
			{
				Status: schemas.SuiteFailed,
				Steps: []schemas.StepResult{
					{Status: schemas.StepPassed},
					{Status: schemas.StepFailed},
					{Status: schemas.StepSkipped},
				},
			},
		},
	}

	manifest.Recount()

	assert.Equal(t, schemas.RunTotals{
		Suites:  2,
		Steps:   5,
		Passed:  3,
		Failed:  1,
		Skipped: 1,
	}, manifest.Totals)
	assert.True(t, manifest.Failed())
}

func TestManifestFailedOnSuiteError(t *testing.T) {
	// A suite that never ran a step still fails the run.
	manifest := schemas.RunManifest{
		Suites: []schemas.SuiteResult{
			{Status: schemas.SuiteFailed, Error: "parse error"},
		},
	}
	manifest.Recount()

	assert.True(t, manifest.Failed())
	assert.Equal(t, 0, manifest.Totals.Steps)
}

func TestDurationSeconds(t *testing.T) {
	step := schemas.StepResult{Duration: 1500 * time.Millisecond}
	assert.InDelta(t, 1.5, step.DurationSeconds(), 0.0001)
}
