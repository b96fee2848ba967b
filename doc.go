/*
Package custody is the kernel of the threshold-signature custody and
issuance engine.

It defines the store interfaces every component persists through, the
Address type used to identify co-signers, and the UnixTime type used for
second-precision timestamps. Domain logic lives in the x/* packages, the
ledger network client sits behind the ledgernet interface, and the public
facade consumed by the transport layer lives in app.
*/
package custody
