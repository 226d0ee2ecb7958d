// Package ncdf implements store.Handle and store.Writer over classic
// (non-HDF5) NetCDF containers, a big-endian header describing dimensions,
// variables and attributes followed by fixed-offset data slabs, with at
// most one record (unlimited) dimension growing the file by appending
// record-sized slabs at the end.
//
// The wire format itself — "The NetCDF Classic Format Specification" —
// is handled by github.com/ctessum/cdf, the teacher's own dependency for
// reading and writing this format throughout vargrid.go, popgrid.go, and
// emissions/aep. This package is a thin adapter translating between
// store.Handle/store.Writer's port shape and *cdf.File/*cdf.Header's
// struct-based API: index-vector strided reads/writes collapse to
// record-range ReadSlab/WriteSlab calls, and datatypes/attribute values
// convert between store's enum and cdf's dynamic-type inference.
package ncdf
