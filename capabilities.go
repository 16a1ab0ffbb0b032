package apphost

import "strings"

// Capabilities records which optional hooks a module implements. It is computed once
// when the module is registered.
type Capabilities uint32

const (
	CapServices Capabilities = 1 << iota
	CapPostServices
	CapRequiredModules
	CapHostBuilder
	CapPostHostBuilder
	CapAppConfiguration
	CapLogging
	CapBeforeRun
	CapAfterRun
	CapConfigurationCheck
	CapInit
	CapStarted
	CapStopping
	CapStopped
)

var capabilityNames = []struct {
	cap  Capabilities
	name string
}{
	{CapServices, "ConfigureServices"},
	{CapPostServices, "PostConfigureServices"},
	{CapRequiredModules, "RequiredModules"},
	{CapHostBuilder, "ConfigureHostBuilder"},
	{CapPostHostBuilder, "PostConfigureHostBuilder"},
	{CapAppConfiguration, "ConfigureAppConfiguration"},
	{CapLogging, "ConfigureLogging"},
	{CapBeforeRun, "OnBeforeRun"},
	{CapAfterRun, "OnAfterRun"},
	{CapConfigurationCheck, "CheckConfiguration"},
	{CapInit, "Init"},
	{CapStarted, "ApplicationStarted"},
	{CapStopping, "ApplicationStopping"},
	{CapStopped, "ApplicationStopped"},
}

// Has reports whether every capability in c is present.
func (c Capabilities) Has(flags Capabilities) bool {
	return c&flags == flags
}

func (c Capabilities) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	for _, cn := range capabilityNames {
		if c.Has(cn.cap) {
			names = append(names, cn.name)
		}
	}
	return strings.Join(names, "|")
}
