// Package video owns frame acquisition for the recognition pipeline.
//
// Responsibilities: the Frame type and its ownership contract, the
// Source interface, concrete sources (image directories, synthetic
// generators, and packet-capture replay behind the pcap build tag),
// and frame-coordinate geometry shared by the detection and tracking
// stages.
//
// Dependency rule: video is the bottom of the pipeline model and must
// not import detect, track, ocr, aggregate, or pipeline.
package video
