// Package internal contains the implementation packages of templc.
//
// # Package Organization
//
//   - source: logical paths, units, roles and the import provider
//   - transpile: the .tmpl parser and its Go code generator
//   - module: the msgpack envelope around gcexportdata export data
//   - catalog: reference modules, their fetchers and the request importer
//   - emit: type-checks generated Go and writes modules
//   - diag: diagnostics and the mapping from generated Go back to sources
//   - pipeline: prepare, declare, link, resolve and emit for one batch
//   - cache: recent pipeline results keyed by their inputs
//   - server: JSON, websocket and HTML overlay endpoints
//   - watcher: debounced file watching and source collection
//   - config, logging, errors, version: ambient support
//
// # Data Flow
//
// A batch of files becomes units (source), is transpiled in declaration
// mode and linked into a temporary module (transpile, emit), is transpiled
// again against the catalog plus that module, and is finally type-checked
// and written as a single module (emit, module). Every phase reports
// diagnostics that pipeline merges in phase order.
//
// Reference modules are fetched once per process (catalog) and shared
// read-only; each compilation decodes its own type information.
package internal
