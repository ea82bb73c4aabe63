// Package nzb reads and writes NZB 1.1 documents: the XML index that maps
// each posted file to its groups and article message-ids.
package nzb
