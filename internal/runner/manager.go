// Package runner executes YAML scenarios. Each scenario runs its workflow in
// one session opened through the driver, and its steps call Method actions by name.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/luispater/webtest/internal/driver"
	log "github.com/sirupsen/logrus"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type RunnerManager struct {
	d       *driver.Driver
	configs map[string]Configuration
}

// NewRunnerManager loads every *.yaml and *.yml scenario in dir.
func NewRunnerManager(d *driver.Driver, dir string) (*RunnerManager, error) {
	rm := &RunnerManager{
		d:       d,
		configs: make(map[string]Configuration),
	}
	if err := rm.LoadConfigurations(dir); err != nil {
		return nil, err
	}
	return rm, nil
}

func (rm *RunnerManager) LoadConfiguration(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cfg Configuration
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	if len(cfg.Workflow) == 0 {
		return fmt.Errorf("scenario %s has no workflow", name)
	}

	rm.configs[name] = cfg
	return nil
}

// LoadConfigurations registers each scenario under its file name without extension.
func (rm *RunnerManager) LoadConfigurations(dir string) error {
	yamlFiles, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("failed to scan yaml files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to scan yml files: %w", err)
	}

	allFiles := append(yamlFiles, ymlFiles...)
	for _, filePath := range allFiles {
		name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
		log.Debugf("Loading scenario file: %s -> %s", name, filePath)
		if err = rm.LoadConfiguration(name, filePath); err != nil {
			return fmt.Errorf("failed to load scenario file %s: %w", filePath, err)
		}
	}

	log.Debugf("Total loaded %d scenario files", len(allFiles))
	return nil
}

// Names returns the loaded scenario names in order.
func (rm *RunnerManager) Names() []string {
	names := make([]string, 0, len(rm.configs))
	for name := range rm.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes scenario name in a fresh session. The session is named after
// the scenario's name field, falling back to the file name.
func (rm *RunnerManager) Run(ctx context.Context, name string) error {
	cfg, ok := rm.configs[name]
	if !ok {
		return fmt.Errorf("scenario %s not found", name)
	}
	test := cfg.Name
	if test == "" {
		test = name
	}
	return rm.d.Run(ctx, test, cfg.Description, func(ctx context.Context) error {
		w := &workflow{
			ctx:     ctx,
			method:  NewMethod(ctx, rm.d),
			results: make(map[string]any),
		}
		return w.run(cfg.Workflow)
	})
}

type workflow struct {
	ctx     context.Context
	method  *Method
	results map[string]any
}

func (w *workflow) run(steps []ConfigurationWorkflow) error {
	for _, step := range steps {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		err := w.runStep(step)
		if err == nil {
			continue
		}
		if step.Failback == nil {
			return fmt.Errorf("step %d (%s) failed: %w", step.Index, step.Action, err)
		}
		log.Debugf("step %d (%s) failed, executing failback %s: %v", step.Index, step.Action, step.Failback.Action, err)
		if errFailback := w.runStep(*step.Failback); errFailback != nil {
			return fmt.Errorf("step %d (%s) failed: %w; failback %s failed: %v", step.Index, step.Action, err, step.Failback.Action, errFailback)
		}
	}
	return nil
}

// runStep executes step once plus step.Retry retries and stores its first
// return value under step.Result.
func (w *workflow) runStep(step ConfigurationWorkflow) error {
	var (
		results []reflect.Value
		err     error
	)
	for attempt := 0; attempt <= step.Retry; attempt++ {
		if attempt > 0 {
			log.Debugf("retrying step %d (%s), attempt %d", step.Index, step.Action, attempt+1)
		}
		results, err = w.executeMethod(w.method, step.Action, step.Params)
		if err == nil || w.ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return err
	}

	if step.Result != "" && len(results) > 0 && results[0].Type() != errorType {
		log.Debugf("store result to variable #%s#", step.Result)
		w.results[step.Result] = results[0].Interface()
	}
	return nil
}

func (w *workflow) executeMethod(obj any, methodName string, params []string) ([]reflect.Value, error) {
	methodValue := reflect.ValueOf(obj).MethodByName(methodName)
	if !methodValue.IsValid() {
		return nil, fmt.Errorf("action '%s' not found", methodName)
	}
	methodFunc := methodValue.Type()
	if methodFunc.NumIn() != len(params) {
		return nil, fmt.Errorf("action '%s' takes %d params, got %d", methodName, methodFunc.NumIn(), len(params))
	}

	args := make([]reflect.Value, len(params))
	for i, param := range params {
		value, err := w.resolve(strings.TrimSpace(param), methodFunc.In(i))
		if err != nil {
			return nil, fmt.Errorf("action '%s' param %d: %w", methodName, i, err)
		}
		args[i] = value
	}

	log.Debugf("execute action %s with params %v", methodName, params)
	results := methodValue.Call(args)
	if n := len(results); n > 0 && results[n-1].Type() == errorType && !results[n-1].IsNil() {
		return results, results[n-1].Interface().(error)
	}
	return results, nil
}

// resolve substitutes #name# with a stored result and converts the input to paramType.
func (w *workflow) resolve(input string, paramType reflect.Type) (reflect.Value, error) {
	if len(input) > 2 && input[0] == '#' && input[len(input)-1] == '#' {
		name := input[1 : len(input)-1]
		stored, ok := w.results[name]
		if !ok {
			return reflect.Value{}, fmt.Errorf("variable #%s# is not set", name)
		}
		if v := reflect.ValueOf(stored); v.IsValid() && v.Type().AssignableTo(paramType) {
			return v, nil
		}
		input = fmt.Sprint(stored)
	}
	return convertToType(input, paramType)
}

func convertToType(input string, targetType reflect.Type) (reflect.Value, error) {
	switch targetType.Kind() {
	case reflect.String:
		return reflect.ValueOf(input).Convert(targetType), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		val, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert to integer: %w", err)
		}
		return reflect.ValueOf(val).Convert(targetType), nil

	case reflect.Float32, reflect.Float64:
		val, err := strconv.ParseFloat(input, 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert to float: %w", err)
		}
		return reflect.ValueOf(val).Convert(targetType), nil

	case reflect.Bool:
		val, err := strconv.ParseBool(input)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert to boolean: %w", err)
		}
		return reflect.ValueOf(val), nil
	}
	return reflect.Value{}, errors.New("unsupported parameter type: " + targetType.String())
}
