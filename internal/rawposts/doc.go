// Package rawposts manages articles Nyuu dumped to posting.dump_failed_posts
// after a failed upload.
//
// Articles can be listed, deleted, or reposted one by one. Nyuu deletes each
// article file after it was accepted, so a repost that fails leaves only the
// articles still to be retried on disk.
package rawposts
