// Package scsi implements the SCSI command layer that sits on top of a
// Bulk-Only Transport, exposing a BlockDevice facade: DeviceInfo,
// ReadBlocks, WriteBlocks. It builds INQUIRY, READ CAPACITY (10/16),
// READ/WRITE (10/16), and REQUEST SENSE CDBs and decodes their responses,
// all multi-byte wire fields big-endian per SCSI convention.
//
// CDB and response wire layout is grounded in the device-side scsi.go in
// this module's history (same struct shapes); this package adds the
// Parse* counterparts the device side never needed since it only
// marshaled responses for a simulated target.
package scsi
