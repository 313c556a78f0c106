// Package report builds attendance exports and per-staff summaries from
// store day records.
//
// The primary outputs are:
//   - CSV exports joined against the staff directory (employee id,
//     department) with rows ordered by collated staff name
//   - Per-staff range summaries (days present, days late, hours worked)
//
// Name ordering uses Unicode collation rather than byte order so accented
// names sort next to their unaccented neighbours.
package report
