// Package fmtt holds small diagnostic printers used for debug logging only
// — never for control flow.
package fmtt

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// ErrChain walks an error chain and renders each layer with its type.
// Used when logging a failed command so the full cause chain is visible
// without reaching for a debugger.
func ErrChain(err error) string {
	if err == nil {
		return "<nil>"
	}

	var b strings.Builder
	i := 0
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(&b, "[%d] %T: %v\n", i, e, e)
		i++
	}
	return b.String()
}

// ErrChainDebug is ErrChain plus a spew.Dump of each layer's fields, for
// verbose dev-build diagnostics of log-replay corruption.
func ErrChainDebug(err error) string {
	var b strings.Builder
	for i := 0; err != nil; err = errors.Unwrap(err) {
		fmt.Fprintf(&b, "[%d] %T\n", i, err)
		fmt.Fprintf(&b, "   Error(): %v\n", err)
		b.WriteString(spew.Sdump(err))

		rv := reflect.ValueOf(err)
		rt := reflect.TypeOf(err)
		if rt != nil && rt.Kind() == reflect.Ptr {
			rv = rv.Elem()
			rt = rt.Elem()
		}
		if rt != nil && rt.Kind() == reflect.Struct {
			for j := 0; j < rt.NumField(); j++ {
				f := rt.Field(j)
				v := rv.Field(j)
				if v.CanInterface() {
					fmt.Fprintf(&b, "   Field %s (%s): %+v\n", f.Name, f.Type, v.Interface())
				}
			}
		}

		if u, ok := err.(interface{ Unwrap() error }); ok {
			fmt.Fprintf(&b, "   Has Unwrap(): %T\n", u.Unwrap())
		}
		i++
	}
	return b.String()
}
