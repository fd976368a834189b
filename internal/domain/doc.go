// Package domain models High-Resolution Rapid Refresh (HRRR) model cycles and
// the gridded rows extracted from them.
//
// # Data Source
//
// NOAA publishes HRRR output to a public object store at
// https://noaa-hrrr-bdp-pds.s3.amazonaws.com. Each hourly model run (a
// "cycle") is identified by its initialization time and produces one GRIB2
// file per forecast hour and product family:
//
//	hrrr.YYYYMMDD/conus/hrrr.tHHz.wrfsfcfNN.grib2   surface fields
//	hrrr.YYYYMMDD/conus/hrrr.tHHz.wrfprsfNN.grib2   pressure-level fields
//
// Every GRIB2 file has a sibling ".idx" text file listing the byte offset of
// each message, which lets the pipeline fetch only the variables it needs with
// HTTP range requests. See package idx.
//
// # Cycle Lifecycle
//
//	discovered → downloading → processing → ingesting → active → superseded
//
// Any stage may move a cycle to failed. A failed cycle found again by
// discovery is reset to discovered with cleared counters. generating_tiles is
// reserved for tile pre-generation and is treated like active by discovery.
// At most one cycle has IsActive set; activation supersedes the previous one
// in a single transaction.
//
// # Grid Conventions
//
// Rows lie on a 1° integer grid over the CONUS region (lat 24..50, lng
// -125..-66 inclusive, 27×60 points). Optional values are nil when the model
// did not produce them. Flight categories follow the FAA ceiling/visibility
// thresholds:
//
//	LIFR  ceiling < 500 ft  or visibility < 1 sm
//	IFR   ceiling < 1000 ft or visibility < 3 sm
//	MVFR  ceiling < 3000 ft or visibility < 5 sm
//	VFR   otherwise
//
// Pressure levels are in hPa. LevelAltitudes gives the approximate altitude in
// feet MSL for each level, used for display only.
package domain
