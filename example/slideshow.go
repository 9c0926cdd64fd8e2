package main

import "encoding/json"

// slideshow mirrors the httpbin.org/json payload.
type slideshow struct {
	Title  string  `json:"title"`
	Author string  `json:"author"`
	Slides []slide `json:"slides"`
}

type slide struct {
	Title string   `json:"title"`
	Type  string   `json:"type"`
	Items []string `json:"items,omitempty"`
}

type slideshowEnvelope struct {
	Slideshow slideshow `json:"slideshow"`
}

// decodeSlideshow unmarshals the response body into the typed structure.
func decodeSlideshow(body []byte) (*slideshow, error) {
	var envelope slideshowEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Slideshow, nil
}
