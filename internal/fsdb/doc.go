// Package fsdb provides a record store that uses the filesystem itself as the
// storage engine.
//
// # Layout
//
// Tables are directories under a root, records are files holding one JSON
// document, secondary indexes are directories of symbolic links and links
// between records are ordinary records stored at a compound key:
//
//	<root>/<table>/<pk>                 one file per record
//	<root>/<table>/@<field>/<value>     symlink to ../<pk>
//	<root>/<table>/<src_pk>:<dest_pk>   link record
//
// Names beginning with "." are never tables or records. They are left to the
// engine (staging files) and to tooling such as the .git directory of a
// versioned database.
//
// # Atomicity
//
// Every record write goes to a temporary file in a scratch directory and is
// renamed into place, so readers observe either the old or the new content.
// A write and the index updates that follow it are not atomic as a whole;
// [DB.Reindex] rebuilds indexes from the records on disk and [DB.Check]
// reports what is out of sync.
//
// # Concurrency
//
// [DB] holds no cache. Mutations take an exclusive advisory lock on the table
// directory so that writers in different processes serialize per table. Reads
// take no lock.
package fsdb
