// Command casefile is the operator CLI for the artifact pipeline: it stages
// uploads, inspects and repairs the queue, and manages hunt indicators. The
// long-running worker pool lives in casefiled.
package main
