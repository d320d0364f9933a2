// Package platform contains filesystem glue: download directory handling
// and filename sanitation.
package platform
