package log

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

type pcTracer interface{ PC() uintptr }

// errorFields is what Error appends for a non-nil err. links caps
// error_links; 0 leaves them out.
func errorFields(err error, links int) []any {
	surface, root := classifyTypes(err)
	kv := []any{"err", err, "error_type", surface, "cause_type", root}
	if chain := errorChain(err); len(chain) > 0 {
		kv = append(kv, "error_chain", chain)
	}
	if links > 0 {
		kv = append(kv, "error_links", chainLinks(err, links))
	}
	return kv
}

// errorChain lists the distinct messages down the Unwrap chain. For a
// joined error the members follow the combined message.
func errorChain(err error) []string {
	var out []string
	add := func(msg string) {
		if n := len(out); n == 0 || out[n-1] != msg {
			out = append(out, msg)
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		add(e.Error())
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			add(e.Error())
		}
	}
	return out
}

// chainLinks describes up to max links of the chain with the source
// position each was created at. Links without a position are skipped,
// except the outermost one.
func chainLinks(err error, max int) []map[string]any {
	var links []map[string]any
	for depth, e := 0, err; e != nil && depth < max; depth, e = depth+1, errors.Unwrap(e) {
		link := map[string]any{"msg": e.Error()}
		if fr, ok := errorFrame(e); ok {
			link["func"], link["file"], link["line"] = fr.Function, fr.File, fr.Line
		} else if depth > 0 {
			continue
		}
		links = append(links, link)
	}
	return links
}

// errorFrame finds where e was created: the PC recorded by a wrap, or the
// first frame of a captured stack outside the logging packages.
func errorFrame(e error) (runtime.Frame, bool) {
	switch t := e.(type) {
	case pcTracer:
		if pc := t.PC(); pc != 0 {
			fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
			return fr, true
		}
	case stackTracer:
		frames := runtime.CallersFrames(t.StackPCs())
		for {
			fr, more := frames.Next()
			if fr.Function != "" && !strings.HasPrefix(fr.Function, "runtime.") && !ownFrame(fr.Function) {
				return fr, true
			}
			if !more {
				break
			}
		}
	}
	return runtime.Frame{}, false
}

// classifyTypes returns the outermost error type that is not a plain
// wrapper (xerrors or fmt.Errorf %w) and the type at the bottom of the chain.
func classifyTypes(err error) (surface, root string) {
	if err == nil {
		return "", ""
	}
	var last error
	for e := err; e != nil; e = errors.Unwrap(e) {
		last = e
		if surface == "" && !wrapperType(reflect.TypeOf(e)) {
			surface = reflect.TypeOf(e).String()
		}
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}
	return surface, fmt.Sprintf("%T", last)
}

func wrapperType(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.HasSuffix(t.PkgPath(), "/internal/xerrors") ||
		(t.PkgPath() == "fmt" && t.Name() == "wrapError")
}
