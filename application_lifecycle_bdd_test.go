package apphost

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/GoCodeAlone/apphost/config"
)

var (
	errUnknownModule    = errors.New("unknown module")
	errUnknownErrorKind = errors.New("unknown error kind")
	errUnexpectedResult = errors.New("unexpected result")
)

// lifecycleBDDContext holds the state of one lifecycle scenario.
type lifecycleBDDContext struct {
	rec    *recorder
	values map[string]string
	order  []string
	alpha  *hookModule[alpha]
	beta   *hookModule[beta]
	gamma  *hookModule[gamma]

	code int
	err  error
}

func (c *lifecycleBDDContext) reset() {
	*c = lifecycleBDDContext{rec: &recorder{}, values: map[string]string{}}
	c.alpha = newHookModule[alpha]("Alpha", c.rec)
	c.beta = newHookModule[beta]("Beta", c.rec)
	c.gamma = newHookModule[gamma]("Gamma", c.rec)
}

// settings applies fn to the named module's behaviour switches.
func (c *lifecycleBDDContext) settings(name string, fn func(requires *[]reflect.Type, vetoBefore, vetoAfter *bool, initErr, checkErr, stoppingErr *error)) error {
	switch name {
	case "Alpha":
		fn(&c.alpha.requires, &c.alpha.vetoBefore, &c.alpha.vetoAfter, &c.alpha.initErr, &c.alpha.checkErr, &c.alpha.stoppingErr)
	case "Beta":
		fn(&c.beta.requires, &c.beta.vetoBefore, &c.beta.vetoAfter, &c.beta.initErr, &c.beta.checkErr, &c.beta.stoppingErr)
	case "Gamma":
		fn(&c.gamma.requires, &c.gamma.vetoBefore, &c.gamma.vetoAfter, &c.gamma.initErr, &c.gamma.checkErr, &c.gamma.stoppingErr)
	default:
		return fmt.Errorf("%w: %s", errUnknownModule, name)
	}
	return nil
}

func (c *lifecycleBDDContext) anApplicationWithModules(list string) error {
	c.order = splitList(list)
	for _, name := range c.order {
		if err := c.settings(name, func(*[]reflect.Type, *bool, *bool, *error, *error, *error) {}); err != nil {
			return err
		}
	}
	return nil
}

func (c *lifecycleBDDContext) moduleVetoesBeforeRun(name string) error {
	return c.settings(name, func(_ *[]reflect.Type, before, _ *bool, _, _, _ *error) { *before = true })
}

func (c *lifecycleBDDContext) moduleVetoesAfterRun(name string) error {
	return c.settings(name, func(_ *[]reflect.Type, _, after *bool, _, _, _ *error) { *after = true })
}

func (c *lifecycleBDDContext) moduleFailsToInitialize(name string) error {
	return c.settings(name, func(_ *[]reflect.Type, _, _ *bool, initErr, _, _ *error) { *initErr = errTestInit })
}

func (c *lifecycleBDDContext) moduleFailsItsConfigurationCheck(name string) error {
	return c.settings(name, func(_ *[]reflect.Type, _, _ *bool, _, checkErr, _ *error) { *checkErr = errTestCheck })
}

func (c *lifecycleBDDContext) moduleFailsWhileStopping(name string) error {
	return c.settings(name, func(_ *[]reflect.Type, _, _ *bool, _, _, stoppingErr *error) { *stoppingErr = errTestStopping })
}

func (c *lifecycleBDDContext) moduleRequiresAnUnregisteredModule(name string) error {
	return c.settings(name, func(requires *[]reflect.Type, _, _ *bool, _, _, _ *error) {
		*requires = append(*requires, TypeOf[marker]())
	})
}

func (c *lifecycleBDDContext) moduleRequiresModule(name, required string) error {
	var t reflect.Type
	switch required {
	case "Alpha":
		t = reflect.TypeOf(c.alpha)
	case "Beta":
		t = reflect.TypeOf(c.beta)
	case "Gamma":
		t = reflect.TypeOf(c.gamma)
	default:
		return fmt.Errorf("%w: %s", errUnknownModule, required)
	}
	return c.settings(name, func(requires *[]reflect.Type, _, _ *bool, _, _, _ *error) {
		*requires = append(*requires, t)
	})
}

func (c *lifecycleBDDContext) theConfigurationValueIs(key, value string) error {
	c.values[key] = value
	return nil
}

func (c *lifecycleBDDContext) theApplicationRuns() error {
	app := New(WithArgs(), WithSignals(), WithLogOutput(&syncBuffer{}), WithConfigProviders(config.Map(c.values)))
	for _, name := range c.order {
		var err error
		switch name {
		case "Alpha":
			err = AddModule[recordingOptions](app, c.alpha)
		case "Beta":
			err = AddModule[recordingOptions](app, c.beta)
		case "Gamma":
			err = AddModule[recordingOptions](app, c.gamma)
		}
		if err != nil {
			return err
		}
	}

	// A cancelled context makes Run stop right after ApplicationStarted.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.code, c.err = app.Run(ctx)
	return nil
}

func (c *lifecycleBDDContext) theExitCodeShouldBe(code int) error {
	if c.code != code {
		return fmt.Errorf("%w: exit code %d, want %d (error: %v)", errUnexpectedResult, c.code, code, c.err)
	}
	return nil
}

func (c *lifecycleBDDContext) theRunShouldSucceed() error {
	if c.err != nil {
		return fmt.Errorf("%w: run failed: %w", errUnexpectedResult, c.err)
	}
	return nil
}

func (c *lifecycleBDDContext) theRunShouldFailWith(kind string) error {
	targets := map[string]error{
		"missing dependency":    ErrMissingDependency,
		"init failure":          ErrInitFailed,
		"invalid configuration": ErrConfigurationInvalid,
	}
	target, ok := targets[kind]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownErrorKind, kind)
	}
	if !errors.Is(c.err, target) {
		return fmt.Errorf("%w: got %v, want %v", errUnexpectedResult, c.err, target)
	}
	return nil
}

func (c *lifecycleBDDContext) theErrorShouldNameModules(list string) error {
	var missing *MissingDependencyError
	if !errors.As(c.err, &missing) {
		return fmt.Errorf("%w: %v is not a missing dependency error", errUnexpectedResult, c.err)
	}
	var got []string
	for _, m := range missing.Missing {
		got = append(got, m.Module.String())
	}
	want := splitList(list)
	if len(got) != len(want) {
		return fmt.Errorf("%w: missing %v, want modules %v", errUnexpectedResult, got, want)
	}
	for i, name := range want {
		if !strings.Contains(got[i], strings.ToLower(name)) {
			return fmt.Errorf("%w: missing %v, want modules %v", errUnexpectedResult, got, want)
		}
	}
	return nil
}

func (c *lifecycleBDDContext) hookShouldRunForInOrder(hook, list string) error {
	var got []string
	for _, call := range c.rec.Calls() {
		if name, h, ok := strings.Cut(call, "."); ok && h == hook {
			got = append(got, name)
		}
	}
	if want := splitList(list); !slices.Equal(got, want) {
		return fmt.Errorf("%w: %s ran for %v, want %v", errUnexpectedResult, hook, got, want)
	}
	return nil
}

func (c *lifecycleBDDContext) hookShouldNotHaveRun(hook string) error {
	for _, call := range c.rec.Calls() {
		if strings.HasSuffix(call, "."+hook) {
			return fmt.Errorf("%w: %s ran", errUnexpectedResult, call)
		}
	}
	return nil
}

func (c *lifecycleBDDContext) moduleShouldNotHaveRunAnyHook(name string) error {
	for _, call := range c.rec.Calls() {
		if strings.HasPrefix(call, name+".") {
			return fmt.Errorf("%w: %s ran", errUnexpectedResult, call)
		}
	}
	return nil
}

func splitList(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// InitializeLifecycleScenario registers the lifecycle step definitions.
func InitializeLifecycleScenario(ctx *godog.ScenarioContext) {
	c := &lifecycleBDDContext{}

	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	ctx.Step(`^an application with modules "([^"]*)"$`, c.anApplicationWithModules)
	ctx.Step(`^module "([^"]*)" vetoes before run$`, c.moduleVetoesBeforeRun)
	ctx.Step(`^module "([^"]*)" vetoes after run$`, c.moduleVetoesAfterRun)
	ctx.Step(`^module "([^"]*)" fails to initialize$`, c.moduleFailsToInitialize)
	ctx.Step(`^module "([^"]*)" fails its configuration check$`, c.moduleFailsItsConfigurationCheck)
	ctx.Step(`^module "([^"]*)" fails while stopping$`, c.moduleFailsWhileStopping)
	ctx.Step(`^module "([^"]*)" requires an unregistered module$`, c.moduleRequiresAnUnregisteredModule)
	ctx.Step(`^module "([^"]*)" requires module "([^"]*)"$`, c.moduleRequiresModule)
	ctx.Step(`^the configuration value "([^"]*)" is "([^"]*)"$`, c.theConfigurationValueIs)

	ctx.Step(`^the application runs$`, c.theApplicationRuns)

	ctx.Step(`^the exit code should be (\d+)$`, c.theExitCodeShouldBe)
	ctx.Step(`^the run should succeed$`, c.theRunShouldSucceed)
	ctx.Step(`^the run should fail with "([^"]*)"$`, c.theRunShouldFailWith)
	ctx.Step(`^the error should name modules "([^"]*)"$`, c.theErrorShouldNameModules)
	ctx.Step(`^"([^"]*)" should run for "([^"]*)" in order$`, c.hookShouldRunForInOrder)
	ctx.Step(`^"([^"]*)" should not have run$`, c.hookShouldNotHaveRun)
	ctx.Step(`^module "([^"]*)" should not have run any hook$`, c.moduleShouldNotHaveRunAnyHook)
}

func TestApplicationLifecycleFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeLifecycleScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/application_lifecycle.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
