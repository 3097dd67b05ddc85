package model

// Package model defines domain data structures used across the app: songs,
// download requests, and the task status enums pushed over the status socket.
// Structures are designed for direct map keying and explicit state
// classification.
