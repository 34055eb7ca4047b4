package ws

// Connected is the first frame every connection receives.
const Connected = "connected"
