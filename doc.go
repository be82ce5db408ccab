/*

Package lorawan provides the wire encoding for LoRaWAN 1.0.x Class-A
frames: MHDR, DevAddr, FHDR / MACPayload, PHYPayload (including
Join-Request and Join-Accept) and the MAC command set used by the node
stack in the sibling node package.

It implements the encoding.BinaryMarshaler and encoding.BinaryUnmarshaler
interfaces for (un)marshaling the different LoRaWAN payload and message
types.

*/
package lorawan
