// Package queue holds utterances waiting to be spoken. It has a bounded
// FIFO lane for regular text and a priority lane that is always drained
// first, and it applies backpressure to producers when full.
package queue
