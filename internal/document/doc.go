// Package document loads, copies and serializes the structured documents that
// make up a multi-file API description. Documents are represented as yaml.v3
// node trees so mapping key order survives a load/encode round trip, and JSON
// inputs are read through the same parser since JSON is a subset of YAML.
package document
