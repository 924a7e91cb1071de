// Package assets tracks which front-end sources belong to which asset group.
//
// A Registry holds one ordered group per Kind. Sources are appended in call
// order, which is the order they are later concatenated in: CSS cascade and
// JS dependency order both follow it. File sources are de-duplicated by
// normalized absolute path (first occurrence wins), URL sources by exact URL,
// and inline sources are never de-duplicated.
package assets
