/*
Package cairn is a harness for long-running scientific model experiments.

Work is organised as steps grouped into test cases, and test cases into suites.
Each test case is configured by layered INI files with ${section:key}
interpolation, executes its steps in order with fail-fast semantics, and
records its progress in a versioned run state so that a later invocation can
resume, re-run a subset of steps, or compare the outputs with a baseline.

# Lifecycle

Setup and run are separate invocations. Setup resolves and validates
everything before it creates anything: configuration, interpolation, step
options and step selection. It then writes one merged configuration file per
test case and the run state. Run reloads the run state, rebuilds each test
case from its (possibly hand-edited) configuration file, executes the selected
steps and appends one provenance entry per test case.

# Usage

	h, err := cairn.New("/scratch/nightly", cairn.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if _, err := h.Setup(ctx, "nightly", suite.SetupOptions{Blueprints: blueprints}); err != nil {
		log.Fatal(err)
	}

	res, err := h.Run(ctx, "nightly", suite.RunOptions{Resume: true})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%d failures\n", res.Failures())

Blueprints are usually read from YAML catalogs with package catalog.
*/
package cairn
