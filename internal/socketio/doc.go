// Package socketio implements the subset of the Engine.IO v4 / Socket.IO v5
// wire format the realtime client speaks over a WebSocket transport.
//
// Every WebSocket text frame is one Engine.IO packet: a single type digit
// followed by its payload. Engine.IO "message" packets (type 4) carry a
// Socket.IO packet, itself a type digit, an optional "/namespace," prefix,
// an optional numeric ack id, and a JSON body:
//
//	0{"sid":"...","pingInterval":25000,"pingTimeout":20000}   engine open
//	2 / 3                                                      ping / pong
//	40{"token":"..."}                                          socket connect
//	42["order:created",{"order":{...}}]                        socket event
//	44{"message":"unauthorized"}                               connect error
package socketio
