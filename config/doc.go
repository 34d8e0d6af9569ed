// Package config holds gpuprof's environment surface and base configuration.
//
// The base configuration is a YAML file named by GPUPROF_CONFIG (default
// /etc/gpuprof.yaml). It lists the events collected per GPU context and,
// optionally, host activity outputs:
//
//	events:
//	  - inst_executed
//	  - active_cycles
//	sample_period: 100ms
//	multiplex_period: 1s
//	report_period: 1m
//	activity:
//	  cpu_profile: /tmp/host-cpu.prof
//
// A [Loader] rereads the file each time [Loader.InitBaseConfig] runs, which
// happens on every GPU context creation.
package config
