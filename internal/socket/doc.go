// Package socket implements the persistent responder connection: a TCP
// listener that pushes pending requests as newline-delimited JSON and reads
// results back on the same connection.
//
// Every accepted connection runs two loops. The push loop blocks on the
// broker queue and writes one envelope per line; the read loop parses result
// lines and hands them to the broker. Either loop ending cancels the other.
package socket
