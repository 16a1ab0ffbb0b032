package apphost

import (
	"testing"
	"time"

	"github.com/GoCodeAlone/apphost/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type defaultsTestOptions struct {
	BaseModuleOptions
	Name     string            `default:"Default Name"`
	Port     int               `default:"8080" required:"true"`
	Debug    bool              `default:"false"`
	Ratio    float64           `default:"0.5"`
	Timeout  time.Duration     `default:"30s"`
	Tags     []string          `default:"[\"tag1\", \"tag2\"]"`
	Labels   map[string]string `default:"{\"key1\":\"value1\"}"`
	Env      string            `required:"true"`
	Nested   *nestedTestOptions
	Inline   nestedTestOptions
	Started  time.Time
	Retries  uint8 `default:"3"`
}

type nestedTestOptions struct {
	Timeout int    `default:"30"`
	APIKey  string `required:"true"`
}

func TestProcessOptionsDefaults(t *testing.T) {
	tests := []struct {
		name  string
		input *defaultsTestOptions
		check func(t *testing.T, o *defaultsTestOptions)
	}{
		{
			name:  "zero values receive defaults",
			input: &defaultsTestOptions{},
			check: func(t *testing.T, o *defaultsTestOptions) {
				assert.True(t, o.Enabled)
				assert.Equal(t, "Default Name", o.Name)
				assert.Equal(t, 8080, o.Port)
				assert.InDelta(t, 0.5, o.Ratio, 0.0001)
				assert.Equal(t, 30*time.Second, o.Timeout)
				assert.Equal(t, []string{"tag1", "tag2"}, o.Tags)
				assert.Equal(t, map[string]string{"key1": "value1"}, o.Labels)
				assert.Equal(t, uint8(3), o.Retries)
				assert.Equal(t, 30, o.Inline.Timeout)
				assert.Nil(t, o.Nested, "nil struct pointers stay nil")
			},
		},
		{
			name:  "existing values are kept",
			input: &defaultsTestOptions{Name: "Custom", Port: 9000, Nested: &nestedTestOptions{Timeout: 5}},
			check: func(t *testing.T, o *defaultsTestOptions) {
				assert.Equal(t, "Custom", o.Name)
				assert.Equal(t, 9000, o.Port)
				assert.Equal(t, 5, o.Nested.Timeout)
			},
		},
		{
			name:  "populated nested pointers receive defaults",
			input: &defaultsTestOptions{Nested: &nestedTestOptions{}},
			check: func(t *testing.T, o *defaultsTestOptions) {
				assert.Equal(t, 30, o.Nested.Timeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, ProcessOptionsDefaults(tt.input))
			tt.check(t, tt.input)
		})
	}
}

func TestProcessOptionsDefaults_Errors(t *testing.T) {
	assert.ErrorIs(t, ProcessOptionsDefaults(nil), ErrOptionsNotPointer)
	assert.ErrorIs(t, ProcessOptionsDefaults(defaultsTestOptions{}), ErrOptionsNotPointer)
	assert.ErrorIs(t, ProcessOptionsDefaults(new(int)), ErrOptionsNotPointer)

	overflow := &struct {
		Small int8 `default:"1000"`
	}{}
	assert.ErrorIs(t, ProcessOptionsDefaults(overflow), ErrDefaultValueOverflows)

	bad := &struct {
		Wait time.Duration `default:"soon"`
	}{}
	assert.Error(t, ProcessOptionsDefaults(bad))

	unsupported := &struct {
		Ch chan int `default:"1"`
	}{}
	assert.ErrorIs(t, ProcessOptionsDefaults(unsupported), ErrUnsupportedTypeForDefault)
}

type replicaRole string

type conversionOptions struct {
	Role    replicaRole   `default:"standby"`
	Weights []int         `default:"1, 2,3"`
	Mask    uint16        `default:"0x1F"`
	Ratio   float32       `default:"0.25"`
	Window  time.Duration `default:"1m30s"`
}

func TestProcessOptionsDefaults_ParsesLikeBoundValues(t *testing.T) {
	defaults := &conversionOptions{}
	require.NoError(t, ProcessOptionsDefaults(defaults))

	cfg, err := config.NewBuilder().AddMap(map[string]string{
		"Replica:Role":    "standby",
		"Replica:Weights": "1, 2,3",
		"Replica:Mask":    "0x1F",
		"Replica:Ratio":   "0.25",
		"Replica:Window":  "1m30s",
	}).Build()
	require.NoError(t, err)

	bound := &conversionOptions{}
	require.NoError(t, config.Bind(cfg, "Replica", bound))

	assert.Equal(t, bound, defaults)
	assert.Equal(t, []int{1, 2, 3}, defaults.Weights)
	assert.Equal(t, uint16(31), defaults.Mask)
}

func TestRequiredFieldErrors(t *testing.T) {
	o := &defaultsTestOptions{Nested: &nestedTestOptions{}}
	require.NoError(t, ProcessOptionsDefaults(o))

	errs := requiredFieldErrors(o)
	var fields []string
	for _, e := range errs {
		fields = append(fields, e.Field)
		assert.Equal(t, ErrRequiredFieldMissing.Error(), e.Message)
	}
	assert.Equal(t, []string{"Env", "Nested.APIKey", "Inline.APIKey"}, fields)

	o.Env, o.Nested.APIKey, o.Inline.APIKey = "prod", "k1", "k2"
	assert.Empty(t, requiredFieldErrors(o))
	assert.Nil(t, requiredFieldErrors(nil))
}
