// Package stream groups records received over the network into per-device
// sessions. A session collects every decoded record from one source address
// and, once the device goes quiet for the configured timeout, is finalized:
// its clock sync map is generated and, when an exporter is configured, its
// records are exported like a raw log file.
package stream
