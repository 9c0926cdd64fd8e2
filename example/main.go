// Minimal example demonstrating a basic asynchronous GET plus decoding a
// JSON response body into a struct. The full scenarios live under examples/;
// this one stays deliberately small. See README for extended patterns.
package main

import (
	"fmt"
	"log"
	"time"

	dataloader "github.com/SPTAndrewChang/SPTDataLoader"
)

const httpbinJSON = "https://httpbin.org/json"

// outcome carries one terminal response back to main.
type outcome struct {
	resp chan *dataloader.Response
}

func (o *outcome) ReceivedResponse(resp *dataloader.Response) { o.resp <- resp }
func (o *outcome) FailedResponse(resp *dataloader.Response)   { o.resp <- resp }

func main() {
	service := dataloader.New(
		dataloader.WithMaxConcurrentTransfers(4),
		dataloader.WithDefaultTimeout(10*time.Second),
		dataloader.WithUserAgent("dataloader-quickstart/1.0"),
		dataloader.WithSimpleLogger(),
	)
	if !service.IsValid() {
		log.Fatalf("invalid service config: %v", service.ValidationError())
	}
	defer service.Close()

	handler := &outcome{resp: make(chan *dataloader.Response, 1)}
	if _, err := service.Perform(dataloader.NewRequest(httpbinJSON), handler); err != nil {
		log.Fatalf("hand-off failed: %v", err)
	}

	resp := <-handler.resp
	if resp.Err != nil {
		log.Fatalf("GET failed: %v", resp.Err)
	}
	fmt.Println("GET status", resp.StatusCode)

	slide, err := decodeSlideshow(resp.Body)
	if err != nil {
		log.Fatalf("decode failed: %v", err)
	}
	fmt.Printf("slideshow %q by %s, %d slides\n", slide.Title, slide.Author, len(slide.Slides))
}
