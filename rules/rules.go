//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo detects the Add/Done goroutine pattern that wg.Go replaces.
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    doSomething()
//	}()
//
// becomes
//
//	wg.Go(func() {
//	    doSomething()
//	})
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern").
		Suggest("$wg.Go(func() { $body })")

	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of go func() { defer $wg.Done(); ... }()")
}

// RangeOverInteger suggests range-over-int for counting loops.
func RangeOverInteger(m dsl.Matcher) {
	m.Match(`for $i := 0; $i < $n; $i++ { $*body }`).
		Where(m["n"].Type.Is("int") && !m["body"].Contains(`$i = $_`) && !m["body"].Contains(`$i++`)).
		Report("use for $i := range $n instead of a three-clause loop").
		Suggest("for $i := range $n { $body }")
}

// TestingContext prefers t.Context over context.Background in tests so
// goroutines started by the test are cancelled when it ends.
func TestingContext(m dsl.Matcher) {
	m.Match(`context.Background()`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("use t.Context() instead of context.Background() in tests")
}

// BenchmarkLoop suggests b.Loop over b.N iteration.
func BenchmarkLoop(m dsl.Matcher) {
	m.Match(`for $i := 0; $i < $b.N; $i++ { $*body }`, `for range $b.N { $*body }`).
		Where(m["b"].Type.Is("*testing.B")).
		Report("use for $b.Loop() { ... } instead of iterating to $b.N")
}

// PrintInLibrary flags direct printing from internal packages; they log
// through their module logger instead.
func PrintInLibrary(m dsl.Matcher) {
	m.Match(
		`fmt.Print($*_)`, `fmt.Println($*_)`, `fmt.Printf($*_)`,
		`log.Print($*_)`, `log.Println($*_)`, `log.Printf($*_)`,
	).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("log through GetLogger() instead of printing from an internal package")
}

// UncategorizedError flags enhanced errors built without a category; the
// API maps categories to status codes and Sentry uses them for grouping.
func UncategorizedError(m dsl.Matcher) {
	m.Match(
		`errors.New($err).Build()`,
		`errors.Newf($*_).Build()`,
		`errors.New($err).Component($_).Build()`,
		`errors.Newf($*_).Component($_).Build()`,
	).
		Where(m.File().PkgPath.Matches(`biosignal-go/internal/`)).
		Report("set Category(...) on enhanced errors")
}

// DeferredTimeSince catches defer statements that evaluate time.Since
// immediately instead of at function exit.
func DeferredTimeSince(m dsl.Matcher) {
	m.Match(`defer $fn($*_, time.Since($t), $*_)`).
		Report("time.Since is evaluated when defer is declared; wrap it in a closure")
}
