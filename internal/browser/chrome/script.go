package chrome

import (
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func (s *Session) ExecuteScript(script string, args ...any) (any, error) {
	expression, err := scriptExpression(script, args)
	if err != nil {
		return nil, err
	}
	return s.evaluate(expression, 0)
}

func (s *Session) ExecuteAsyncScript(script string, args ...any) (any, error) {
	s.mu.Lock()
	timeout := s.script
	s.mu.Unlock()

	expression, err := asyncScriptExpression(script, args, timeout)
	if err != nil {
		return nil, err
	}
	return s.evaluate(expression, timeout)
}

func (s *Session) evaluate(expression string, timeout time.Duration) (any, error) {
	var raw []byte
	err := s.run(timeout, chromedp.Evaluate(expression, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, err
	}
	return decodeResult(raw), nil
}

// decodeResult unwraps the {"value": ...} envelope every script expression returns.
func decodeResult(raw []byte) any {
	return gjson.GetBytes(raw, "value").Value()
}

func encodeArgs(args []any) (string, error) {
	encoded := "[]"
	for i, arg := range args {
		if _, ok := arg.(*Element); ok {
			return "", fmt.Errorf("argument %d: element arguments are not supported by chrome sessions", i)
		}
		var err error
		encoded, err = sjson.Set(encoded, "-1", arg)
		if err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return encoded, nil
}

func scriptExpression(script string, args []any) (string, error) {
	encoded, err := encodeArgs(args)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(function() {
	var result = (function() {
%s
	}).apply(null, %s);
	return {value: result === undefined ? null : result};
})()`, script, encoded), nil
}

func asyncScriptExpression(script string, args []any, timeout time.Duration) (string, error) {
	encoded, err := encodeArgs(args)
	if err != nil {
		return "", err
	}
	guard := ""
	if timeout > 0 {
		guard = fmt.Sprintf(`setTimeout(function() { reject(new Error("script timeout after %s")); }, %d);`, timeout, timeout.Milliseconds())
	}
	return fmt.Sprintf(`new Promise(function(resolve, reject) {
	var args = %s;
	args.push(function(result) { resolve({value: result === undefined ? null : result}); });
	%s
	(function() {
%s
	}).apply(null, args);
})`, encoded, guard, script), nil
}
