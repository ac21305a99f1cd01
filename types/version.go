package types

// Version is the vcollect release version.
const Version = "0.4.2"
